// Package analytics maintains product sales rollups from delivered orders.
//
// Reconcile is idempotent: each order is claimed exactly once via a
// processed-marker on the order row, so re-running it (or the backfill job)
// never double-counts. The marker and the aggregate updates commit in one
// transaction, so a failed run leaves the order unclaimed for retry.
package analytics

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/quickbite/delivery-core/internal/domain/order"
)

// Sentinel errors for claim outcomes.
var (
	// ErrAlreadyProcessed means the order's aggregates were applied by an
	// earlier run; Reconcile treats it as a successful no-op.
	ErrAlreadyProcessed = fmt.Errorf("order already reconciled")
	// ErrNotDelivered means the order has not reached the delivered state.
	ErrNotDelivered = fmt.Errorf("order is not delivered")
)

// Store defines the persistence operations the reconciler needs.
type Store interface {
	// ReconcileDelivered atomically claims the delivered order and applies its
	// per-item aggregates: the reconciled marker and every product increment
	// commit together, so a failed run leaves the order unclaimed and a later
	// run retries it from scratch. It fails with ErrAlreadyProcessed when the
	// marker was already set, ErrNotDelivered for non-delivered orders, and
	// order.ErrNotFound for unknown ids. A product row missing from the
	// catalog is synthesized as a minimal placeholder from the item snapshot,
	// so aggregates are never silently dropped.
	ReconcileDelivered(ctx context.Context, orderID string) (*order.Order, error)

	// DeliveredOrderIDs returns all delivered order ids in ascending
	// delivery-timestamp order.
	DeliveredOrderIDs(ctx context.Context) ([]string, error)
}

// Reconciler applies per-product aggregate updates for delivered orders.
type Reconciler struct {
	store Store
	lg    *zap.Logger
}

// New creates a Reconciler.
func New(store Store, lg *zap.Logger) *Reconciler {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Reconciler{store: store, lg: lg}
}

// Reconcile updates product aggregates for one delivered order. Calling it
// again for the same order is a no-op: the claim fails with
// ErrAlreadyProcessed, which is swallowed here. A failed run never leaves the
// order claimed, so the next call (or the backfill job) picks it up again.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string) error {
	o, err := r.store.ReconcileDelivered(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil
		}
		return errors.Wrapf(err, "reconcile order %s", orderID)
	}

	r.lg.Info("order reconciled",
		zap.String("order_id", orderID),
		zap.Int("items", len(o.Items)),
	)
	return nil
}

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Processed int
	Failed    int
}

// Backfill re-runs Reconcile over every delivered order in ascending
// delivery-timestamp order. Per-order failures are logged and skipped, never
// fatal to the batch. Cancellation via ctx is honored between orders, not
// mid-order.
func (r *Reconciler) Backfill(ctx context.Context) (BackfillResult, error) {
	var res BackfillResult

	ids, err := r.store.DeliveredOrderIDs(ctx)
	if err != nil {
		return res, errors.Wrap(err, "list delivered orders")
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.Reconcile(ctx, id); err != nil {
			res.Failed++
			r.lg.Error("backfill: skipping order",
				zap.String("order_id", id), zap.Error(err))
			continue
		}
		res.Processed++
	}
	return res, nil
}
