package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickbite/delivery-core/internal/domain/coupon"
	"github.com/quickbite/delivery-core/internal/domain/product"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders    map[string]*Order
	createErr error
	updateErr error
	lastDelta int
}

func newOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{orders: make(map[string]*Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, f ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.AgentID != "" && o.AgentID != f.AgentID {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order, expectVersion int64, agentDelta int) error {
	m.lastDelta = agentDelta
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectVersion {
		return ErrConcurrentModification
	}
	cp := *o
	cp.Version = expectVersion + 1
	m.orders[o.ID] = &cp
	return nil
}

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCouponValidator struct {
	discount decimal.Decimal
	err      error
}

func (m *mockCouponValidator) Validate(_ context.Context, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	return m.discount, m.err
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) OrderCreated(*Order)               { n.events = append(n.events, "created") }
func (n *recordingNotifier) OrderStatusChanged(*Order, Status) { n.events = append(n.events, "status") }
func (n *recordingNotifier) OrderAssigned(*Order)              { n.events = append(n.events, "assigned") }
func (n *recordingNotifier) OrderCancelled(*Order)             { n.events = append(n.events, "cancelled") }
func (n *recordingNotifier) PaymentReceived(*Order)            { n.events = append(n.events, "payment") }
func (n *recordingNotifier) PaymentStatusChanged(*Order)       { n.events = append(n.events, "payment_status") }

type mockReconciler struct {
	calls []string
	err   error
}

func (m *mockReconciler) Reconcile(_ context.Context, orderID string) error {
	m.calls = append(m.calls, orderID)
	return m.err
}

// --- Helpers ---

func newTestProduct(id, name string, price string) product.Product {
	return product.Product{ID: id, Name: name, Price: decimal.RequireFromString(price)}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func testPricing() Pricing {
	return Pricing{
		TaxRate:     decimal.RequireFromString("5"),
		DeliveryFee: decimal.RequireFromString("30.00"),
	}
}

func newTestService(repo *mockOrderRepo, products *mockProductRepo, cv coupon.Validator, n Notifier, r Reconciler) *Service {
	return NewService(repo, products, cv, n, r, testPricing(), nil)
}

var admin = user.Actor{UserID: "admin-1", Role: user.RoleAdmin}

// --- Create ---

func TestCreate_EmptyItems(t *testing.T) {
	svc := newTestService(newOrderRepo(), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Address:       "12 Main St",
		PaymentMethod: PaymentCOD,
	})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCreate_AddressRequired(t *testing.T) {
	svc := newTestService(newOrderRepo(), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: PaymentCOD,
	})
	require.ErrorIs(t, err, ErrAddressRequired)
}

func TestCreate_InvalidPaymentMethod(t *testing.T) {
	svc := newTestService(newOrderRepo(), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Address:       "12 Main St",
		PaymentMethod: "card",
	})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestCreate_InvalidQuantity(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10.00")
	svc := newTestService(newOrderRepo(), newProductRepo(p1), &mockCouponValidator{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 0}},
		Address:       "12 Main St",
		PaymentMethod: PaymentCOD,
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestCreate_ProductNotFound(t *testing.T) {
	svc := newTestService(newOrderRepo(), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "missing", Quantity: 1}},
		Address:       "12 Main St",
		PaymentMethod: PaymentCOD,
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestCreate_Totals(t *testing.T) {
	// Two pizzas at 299 each: subtotal 598, tax 5% = 29.90, fee 30 -> 657.90.
	p1 := newTestProduct("p1", "Margherita", "299.00")
	repo := newOrderRepo()
	notifier := &recordingNotifier{}
	svc := newTestService(repo, newProductRepo(p1), &mockCouponValidator{}, notifier, nil)

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 2}},
		Address:       "12 Main St",
		PaymentMethod: PaymentOnline,
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("598.00").Equal(o.Subtotal))
	assert.True(t, decimal.RequireFromString("29.90").Equal(o.Tax))
	assert.True(t, decimal.RequireFromString("657.90").Equal(o.Total))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, int64(1), o.Version)
	assert.Empty(t, o.AgentID)
	assert.Equal(t, []string{"created"}, notifier.events)
}

func TestCreate_PriceSnapshot(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "10.00")
	repo := newOrderRepo()
	products := newProductRepo(p1)
	svc := newTestService(repo, products, &mockCouponValidator{}, nil, nil)

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Address:       "12 Main St",
		PaymentMethod: PaymentCOD,
	})
	require.NoError(t, err)

	// A later catalog price change must not affect the placed order.
	products.byID["p1"] = newTestProduct("p1", "Widget", "99.00")

	stored, err := svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(stored.Items[0].UnitPrice))
	assert.Equal(t, "Widget", stored.Items[0].Name)
}

func TestCreate_WithCoupon(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "100.00")
	cv := &mockCouponValidator{discount: decimal.RequireFromString("50.00")}
	svc := newTestService(newOrderRepo(), newProductRepo(p1), cv, nil, nil)

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Address:       "12 Main St",
		PaymentMethod: PaymentCOD,
		CouponCode:    "WELCOME50",
	})

	require.NoError(t, err)
	// 100 + 5 tax + 30 fee - 50 discount = 85.
	assert.True(t, decimal.RequireFromString("85.00").Equal(o.Total))
	assert.True(t, decimal.RequireFromString("50.00").Equal(o.Discount))
	assert.Equal(t, "WELCOME50", o.CouponCode)
}

func TestCreate_InvalidCoupon(t *testing.T) {
	p1 := newTestProduct("p1", "Widget", "100.00")
	cv := &mockCouponValidator{err: coupon.ErrInvalidCoupon}
	svc := newTestService(newOrderRepo(), newProductRepo(p1), cv, nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "cust-1",
		Items:         []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Address:       "12 Main St",
		PaymentMethod: PaymentCOD,
		CouponCode:    "BOGUS",
	})

	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
}

// --- Transition ---

func TestTransition_HappyPath(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusPending,
		PaymentMethod: PaymentOnline, PaymentStatus: PaymentPaid, Version: 1,
	}
	repo := newOrderRepo(o)
	notifier := &recordingNotifier{}
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, notifier, nil)

	got, err := svc.Transition(context.Background(), "ord-1", StatusConfirmed, "", admin)

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, []string{"status"}, notifier.events)
}

func TestTransition_NotFound(t *testing.T) {
	svc := newTestService(newOrderRepo(), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Transition(context.Background(), "nope", StatusConfirmed, "", admin)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransition_ConcurrentModification(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusPending,
		PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending, Version: 1,
	}
	repo := newOrderRepo(o)
	repo.updateErr = ErrConcurrentModification
	notifier := &recordingNotifier{}
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, notifier, nil)

	_, err := svc.Transition(context.Background(), "ord-1", StatusConfirmed, "", admin)

	require.ErrorIs(t, err, ErrConcurrentModification)
	assert.Empty(t, notifier.events, "no notification on a failed write")
}

func TestTransition_AssignIncrementsAgent(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusConfirmed,
		PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending, Version: 2,
	}
	repo := newOrderRepo(o)
	notifier := &recordingNotifier{}
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, notifier, nil)

	got, err := svc.Transition(context.Background(), "ord-1", StatusAssigned, "agent-1", admin)

	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, 1, repo.lastDelta)
	assert.Equal(t, []string{"status", "assigned"}, notifier.events)
}

func TestTransition_TerminalReleasesAgent(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusOutForDelivery,
		AgentID: "agent-1", PaymentMethod: PaymentOnline, PaymentStatus: PaymentPaid,
		Version: 4,
	}
	repo := newOrderRepo(o)
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, nil, nil)

	got, err := svc.Transition(context.Background(), "ord-1", StatusDelivered, "", admin)

	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, -1, repo.lastDelta)
}

func TestTransition_CancelReleasesAndClearsAgent(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusAssigned,
		AgentID: "agent-1", PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending,
		Version: 3,
	}
	repo := newOrderRepo(o)
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, nil, nil)

	got, err := svc.Transition(context.Background(), "ord-1", StatusCancelled, "", admin)

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Empty(t, got.AgentID, "cancelled orders carry no agent reference")
	assert.Equal(t, -1, repo.lastDelta, "the released agent still gets its decrement")
}

func TestTransition_CODRedirectKeepsAgentBusy(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusOutForDelivery,
		AgentID: "agent-1", PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending,
		Version: 4,
	}
	repo := newOrderRepo(o)
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, nil, nil)

	got, err := svc.Transition(context.Background(), "ord-1", StatusDelivered, "", admin)

	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, got.Status)
	assert.Equal(t, 0, repo.lastDelta, "awaiting_payment is not terminal")
}

func TestTransition_DeliveredTriggersReconcile(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusAwaitingPayment,
		AgentID: "agent-1", PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending,
		Version: 5,
	}
	rec := &mockReconciler{}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, nil, rec)

	got, err := svc.Transition(context.Background(), "ord-1", StatusDelivered, "", admin)

	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, []string{"ord-1"}, rec.calls)
}

func TestTransition_ReconcileFailureSwallowed(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusOutForDelivery,
		PaymentMethod: PaymentOnline, PaymentStatus: PaymentPaid, Version: 3,
	}
	rec := &mockReconciler{err: context.DeadlineExceeded}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, nil, rec)

	got, err := svc.Transition(context.Background(), "ord-1", StatusDelivered, "", admin)

	require.NoError(t, err, "reconcile failure must not fail the transition")
	assert.Equal(t, StatusDelivered, got.Status)
}

func TestTransition_CancelNotifies(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusConfirmed,
		PaymentMethod: PaymentOnline, PaymentStatus: PaymentPaid, Version: 2,
	}
	notifier := &recordingNotifier{}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, notifier, nil)

	got, err := svc.Transition(context.Background(), "ord-1", StatusCancelled, "", admin)

	require.NoError(t, err)
	assert.Equal(t, PaymentRefunded, got.PaymentStatus)
	// Refund changes the payment status, so both fire after the cancel.
	assert.Equal(t, []string{"status", "cancelled", "payment_status"}, notifier.events)
}

// --- Assign ---

func TestAssign_RequiresConfirmedOrder(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusPending,
		PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending, Version: 1,
	}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Assign(context.Background(), "ord-1", "agent-1", admin)
	require.ErrorIs(t, err, ErrOrderNotAssignable)
}

func TestAssign_RequiresAgent(t *testing.T) {
	svc := newTestService(newOrderRepo(), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.Assign(context.Background(), "ord-1", "", admin)
	require.ErrorIs(t, err, ErrAgentRequired)
}

func TestAssign_UnavailableAgent(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusConfirmed,
		PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending, Version: 2,
	}
	repo := newOrderRepo(o)
	repo.updateErr = user.ErrAgentUnavailable
	notifier := &recordingNotifier{}
	svc := newTestService(repo, newProductRepo(), &mockCouponValidator{}, notifier, nil)

	_, err := svc.Assign(context.Background(), "ord-1", "agent-1", admin)

	require.ErrorIs(t, err, user.ErrAgentUnavailable)
	assert.Empty(t, notifier.events)

	// The order itself is untouched.
	stored, err := svc.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
	assert.Empty(t, stored.AgentID)
}

// --- MarkPaymentReceived ---

func TestMarkPaymentReceived(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusConfirmed,
		PaymentMethod: PaymentOnline, PaymentStatus: PaymentPending, Version: 2,
	}
	notifier := &recordingNotifier{}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, notifier, nil)

	got, err := svc.MarkPaymentReceived(context.Background(), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, []string{"payment", "payment_status"}, notifier.events)
}

func TestMarkPaymentReceived_AlreadySettled(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusConfirmed,
		PaymentMethod: PaymentOnline, PaymentStatus: PaymentPaid, Version: 2,
	}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, nil, nil)

	_, err := svc.MarkPaymentReceived(context.Background(), "ord-1")
	require.ErrorIs(t, err, ErrPaymentAlreadySettled)
}

// --- Totals ---

func TestComputeTotals_FlooredAtZero(t *testing.T) {
	items := []Item{{ProductID: "p1", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1}}

	subtotal, total := ComputeTotals(items,
		decimal.RequireFromString("0.50"),
		decimal.RequireFromString("30.00"),
		decimal.RequireFromString("999.00"),
	)

	assert.True(t, decimal.RequireFromString("10.00").Equal(subtotal))
	assert.True(t, decimal.Zero.Equal(total))
}

func TestComputeTotals_Scenario(t *testing.T) {
	// subtotal 598 + tax 18 + fee 30 = 646.
	items := []Item{
		{ProductID: "p1", UnitPrice: decimal.RequireFromString("299.00"), Quantity: 2},
	}

	subtotal, total := ComputeTotals(items,
		decimal.RequireFromString("18.00"),
		decimal.RequireFromString("30.00"),
		decimal.Zero,
	)

	assert.True(t, decimal.RequireFromString("598.00").Equal(subtotal))
	assert.True(t, decimal.RequireFromString("646.00").Equal(total))
}

func TestService_FixedClock(t *testing.T) {
	o := &Order{
		ID: "ord-1", CustomerID: "cust-1", Status: StatusPending,
		PaymentMethod: PaymentCOD, PaymentStatus: PaymentPending, Version: 1,
	}
	svc := newTestService(newOrderRepo(o), newProductRepo(), &mockCouponValidator{}, nil, nil)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	got, err := svc.Transition(context.Background(), "ord-1", StatusConfirmed, "", admin)

	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, fixed, *got.ConfirmedAt)
}
