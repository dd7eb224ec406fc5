package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `id, order_number, customer_id, items, subtotal, tax, delivery_fee,
	discount, total, coupon_code, address, payment_method, payment_status, status,
	COALESCE(agent_id, ''), version, created_at, confirmed_at, assigned_at,
	picked_up_at, delivered_at, cancelled_at, reconciled_at`

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and fills in the database-assigned sequential
// order number. Line items are serialized to JSON for the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO orders (id, customer_id, items, subtotal, tax, delivery_fee,
			discount, total, coupon_code, address, payment_method, payment_status,
			status, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING order_number`,
		o.ID, o.CustomerID, itemsJSON, o.Subtotal, o.Tax, o.DeliveryFee,
		o.Discount, o.Total, o.CouponCode, o.Address, o.PaymentMethod,
		o.PaymentStatus, o.Status, o.Version, o.CreatedAt,
	).Scan(&o.OrderNumber)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns a single order by id, or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var (
		args  []any
		where []string
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		where = append(where, "agent_id = $"+strconv.Itoa(len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// Update persists a transition in one version-guarded statement, adjusting the
// agent's active-order count in the same transaction when agentDelta is
// non-zero. A stale expectVersion fails with order.ErrConcurrentModification;
// an increment against an offline or unapproved agent fails with
// user.ErrAgentUnavailable. Either failure rolls back the whole update.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order, expectVersion int64, agentDelta int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if agentDelta < 0 {
		// The decrement targets the agent still stored on the row: a cancel
		// clears o.AgentID before the order row is rewritten below.
		if _, err := tx.Exec(ctx, `
			UPDATE users SET active_orders = GREATEST(active_orders - 1, 0)
			WHERE id = (SELECT agent_id FROM orders WHERE id = $1)`,
			o.ID,
		); err != nil {
			return fmt.Errorf("decrementing agent for order %q: %w", o.ID, err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET
			status = $1, payment_status = $2, agent_id = NULLIF($3, ''),
			confirmed_at = $4, assigned_at = $5, picked_up_at = $6,
			delivered_at = $7, cancelled_at = $8, version = version + 1
		WHERE id = $9 AND version = $10`,
		o.Status, o.PaymentStatus, o.AgentID,
		o.ConfirmedAt, o.AssignedAt, o.PickedUpAt,
		o.DeliveredAt, o.CancelledAt, o.ID, expectVersion,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", o.ID, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrConcurrentModification
	}

	if agentDelta > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET active_orders = active_orders + 1
			WHERE id = $1 AND role = 'delivery_agent'
			  AND is_online AND approval_status = 'approved'`,
			o.AgentID,
		)
		if err != nil {
			return fmt.Errorf("incrementing agent %q: %w", o.AgentID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'delivery_agent')`,
				o.AgentID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("checking agent %q: %w", o.AgentID, err)
			}
			if !exists {
				return user.ErrNotFound
			}
			return user.ErrAgentUnavailable
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &itemsJSON, &o.Subtotal, &o.Tax,
		&o.DeliveryFee, &o.Discount, &o.Total, &o.CouponCode, &o.Address,
		&o.PaymentMethod, &o.PaymentStatus, &o.Status, &o.AgentID, &o.Version,
		&o.CreatedAt, &o.ConfirmedAt, &o.AssignedAt, &o.PickedUpAt,
		&o.DeliveredAt, &o.CancelledAt, &o.ReconciledAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return &o, nil
}
