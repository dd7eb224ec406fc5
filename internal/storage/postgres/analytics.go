package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickbite/delivery-core/internal/domain/analytics"
	"github.com/quickbite/delivery-core/internal/domain/order"
)

var _ analytics.Store = (*AnalyticsStore)(nil)

// AnalyticsStore implements analytics.Store backed by PostgreSQL.
type AnalyticsStore struct {
	pool *pgxpool.Pool
}

// NewAnalyticsStore returns an AnalyticsStore that uses the given pool.
func NewAnalyticsStore(pool *pgxpool.Pool) *AnalyticsStore {
	return &AnalyticsStore{pool: pool}
}

// ReconcileDelivered sets the reconciled marker on a delivered order and
// upserts the per-item product aggregates in one transaction: a failure rolls
// back the claim along with any applied increments, so the order stays
// retryable. The marker's WHERE clause is the idempotency guard: a second
// claim matches zero rows and is classified by re-reading the order.
func (s *AnalyticsStore) ReconcileDelivered(ctx context.Context, orderID string) (*order.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE orders SET reconciled_at = now()
		WHERE id = $1 AND status = 'delivered' AND reconciled_at IS NULL
		RETURNING `+orderColumns, orderID)

	o, err := scanOrder(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claiming order %q: %w", orderID, err)
		}
		return nil, s.classifyUnclaimed(ctx, orderID)
	}

	// A missing product is synthesized as a minimal placeholder from the item
	// snapshot, so drifted catalogs never lose revenue data.
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO products (id, name, price, sales_count, total_revenue)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				sales_count   = products.sales_count + EXCLUDED.sales_count,
				total_revenue = products.total_revenue + EXCLUDED.total_revenue`,
			it.ProductID, it.Name, it.UnitPrice, int64(it.Quantity), it.LineTotal(),
		); err != nil {
			return nil, fmt.Errorf("applying sale for product %q: %w", it.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reconcile: %w", err)
	}
	return o, nil
}

// classifyUnclaimed explains a claim that matched zero rows.
func (s *AnalyticsStore) classifyUnclaimed(ctx context.Context, orderID string) error {
	var (
		status       order.Status
		reconciledAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT status, reconciled_at FROM orders WHERE id = $1`, orderID,
	).Scan(&status, &reconciledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("checking order %q: %w", orderID, err)
	}
	if reconciledAt != nil {
		return analytics.ErrAlreadyProcessed
	}
	if status != order.StatusDelivered {
		return analytics.ErrNotDelivered
	}
	// Claimed by a concurrent run between our two statements.
	return analytics.ErrAlreadyProcessed
}

// DeliveredOrderIDs returns all delivered order ids, oldest delivery first.
func (s *AnalyticsStore) DeliveredOrderIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM orders WHERE status = 'delivered'
		ORDER BY delivered_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing delivered orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
