package analytics

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbite/delivery-core/internal/domain/order"
)

// --- Mock implementations ---

type aggregate struct {
	sales   int64
	revenue decimal.Decimal
}

type mockStore struct {
	orders   map[string]*order.Order
	claimed  map[string]bool
	products map[string]*aggregate
	applyErr map[string]error // per product id
}

func newStore(orders ...*order.Order) *mockStore {
	m := &mockStore{
		orders:   make(map[string]*order.Order),
		claimed:  make(map[string]bool),
		products: make(map[string]*aggregate),
		applyErr: make(map[string]error),
	}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

// ReconcileDelivered mirrors the transactional store: a per-item failure
// leaves the order unclaimed and applies no aggregates at all.
func (m *mockStore) ReconcileDelivered(_ context.Context, orderID string) (*order.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != order.StatusDelivered {
		return nil, ErrNotDelivered
	}
	if m.claimed[orderID] {
		return nil, ErrAlreadyProcessed
	}
	for _, it := range o.Items {
		if err := m.applyErr[it.ProductID]; err != nil {
			return nil, err
		}
	}
	for _, it := range o.Items {
		agg, ok := m.products[it.ProductID]
		if !ok {
			agg = &aggregate{revenue: decimal.Zero}
			m.products[it.ProductID] = agg
		}
		agg.sales += int64(it.Quantity)
		agg.revenue = agg.revenue.Add(it.LineTotal())
	}
	m.claimed[orderID] = true
	return o, nil
}

func (m *mockStore) DeliveredOrderIDs(_ context.Context) ([]string, error) {
	var ids []string
	for id, o := range m.orders {
		if o.Status == order.StatusDelivered {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// --- Helpers ---

func deliveredOrder(id string, items ...order.Item) *order.Order {
	return &order.Order{
		ID:     id,
		Status: order.StatusDelivered,
		Items:  items,
	}
}

func item(productID string, price string, qty int) order.Item {
	return order.Item{
		ProductID: productID,
		Name:      productID,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

// --- Tests ---

func TestReconcile(t *testing.T) {
	store := newStore(deliveredOrder("ord-1",
		item("p1", "299.00", 2),
		item("p2", "60.00", 1),
	))
	r := New(store, nil)

	require.NoError(t, r.Reconcile(context.Background(), "ord-1"))

	require.Contains(t, store.products, "p1")
	assert.Equal(t, int64(2), store.products["p1"].sales)
	assert.True(t, decimal.RequireFromString("598.00").Equal(store.products["p1"].revenue))
	assert.Equal(t, int64(1), store.products["p2"].sales)
	assert.True(t, decimal.RequireFromString("60.00").Equal(store.products["p2"].revenue))
}

func TestReconcile_Idempotent(t *testing.T) {
	store := newStore(deliveredOrder("ord-1", item("p1", "100.00", 1)))
	r := New(store, nil)

	require.NoError(t, r.Reconcile(context.Background(), "ord-1"))
	require.NoError(t, r.Reconcile(context.Background(), "ord-1"))
	require.NoError(t, r.Reconcile(context.Background(), "ord-1"))

	assert.Equal(t, int64(1), store.products["p1"].sales, "repeat runs must not double-count")
	assert.True(t, decimal.RequireFromString("100.00").Equal(store.products["p1"].revenue))
}

func TestReconcile_FailureLeavesOrderRetryable(t *testing.T) {
	store := newStore(deliveredOrder("ord-1", item("p1", "100.00", 1)))
	store.applyErr["p1"] = errors.New("db write failed")
	r := New(store, nil)

	require.Error(t, r.Reconcile(context.Background(), "ord-1"))
	assert.False(t, store.claimed["ord-1"], "a failed run must not keep the claim")
	assert.Empty(t, store.products)

	// The transient failure clears; the retry must still see the order.
	delete(store.applyErr, "p1")
	require.NoError(t, r.Reconcile(context.Background(), "ord-1"))
	require.Contains(t, store.products, "p1")
	assert.Equal(t, int64(1), store.products["p1"].sales)
	assert.True(t, decimal.RequireFromString("100.00").Equal(store.products["p1"].revenue))
}

func TestBackfill_RepairsFailedReconcile(t *testing.T) {
	store := newStore(deliveredOrder("ord-1", item("p1", "100.00", 1)))
	store.applyErr["p1"] = errors.New("db write failed")
	r := New(store, nil)

	require.Error(t, r.Reconcile(context.Background(), "ord-1"))
	delete(store.applyErr, "p1")

	res, err := r.Backfill(context.Background())

	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Processed: 1}, res)
	require.Contains(t, store.products, "p1", "the backfill must repair the lost rollup")
	assert.Equal(t, int64(1), store.products["p1"].sales)
}

func TestReconcile_NotDelivered(t *testing.T) {
	store := newStore(&order.Order{ID: "ord-1", Status: order.StatusConfirmed})
	r := New(store, nil)

	err := r.Reconcile(context.Background(), "ord-1")
	require.ErrorIs(t, err, ErrNotDelivered)
	assert.Empty(t, store.products)
}

func TestReconcile_NotFound(t *testing.T) {
	r := New(newStore(), nil)

	err := r.Reconcile(context.Background(), "nope")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestBackfill(t *testing.T) {
	store := newStore(
		deliveredOrder("ord-1", item("p1", "100.00", 1)),
		deliveredOrder("ord-2", item("p1", "100.00", 2)),
		&order.Order{ID: "ord-3", Status: order.StatusPending},
	)
	r := New(store, nil)

	res, err := r.Backfill(context.Background())

	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Processed: 2}, res)
	assert.Equal(t, int64(3), store.products["p1"].sales)
}

func TestBackfill_SkipsFailedOrders(t *testing.T) {
	store := newStore(
		deliveredOrder("ord-1", item("p1", "100.00", 1)),
		deliveredOrder("ord-2", item("p2", "50.00", 1)),
	)
	store.applyErr["p2"] = errors.New("db write failed")
	r := New(store, nil)

	res, err := r.Backfill(context.Background())

	require.NoError(t, err, "per-order failures are not fatal to the batch")
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(1), store.products["p1"].sales)
}

func TestBackfill_AlreadyProcessedNotCountedAsFailure(t *testing.T) {
	store := newStore(deliveredOrder("ord-1", item("p1", "100.00", 1)))
	r := New(store, nil)
	require.NoError(t, r.Reconcile(context.Background(), "ord-1"))

	res, err := r.Backfill(context.Background())

	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Processed: 1}, res)
	assert.Equal(t, int64(1), store.products["p1"].sales)
}

func TestBackfill_Cancelled(t *testing.T) {
	store := newStore(deliveredOrder("ord-1", item("p1", "100.00", 1)))
	r := New(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Backfill(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.products)
}
