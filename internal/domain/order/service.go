package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quickbite/delivery-core/internal/domain/coupon"
	"github.com/quickbite/delivery-core/internal/domain/product"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

// Repository defines persistence operations for orders. All writes are single
// atomic statements: Update is guarded by expectVersion and fails with
// ErrConcurrentModification when another writer got there first.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)

	// Update persists o's transition fields guarded by expectVersion.
	// agentDelta adjusts the referenced agent's active-order count inside the
	// same transaction: +1 on assignment (conditional on the agent being
	// online and approved, failing with user.ErrAgentUnavailable) and -1 when
	// an order with an agent reaches a terminal state.
	Update(ctx context.Context, o *Order, expectVersion int64, agentDelta int) error
}

// Notifier receives domain events after a successful state change. Delivery is
// fire-and-forget: implementations must never block or return errors into the
// request path.
type Notifier interface {
	OrderCreated(o *Order)
	OrderStatusChanged(o *Order, previous Status)
	OrderAssigned(o *Order)
	OrderCancelled(o *Order)
	PaymentReceived(o *Order)
	PaymentStatusChanged(o *Order)
}

// Reconciler updates product aggregates for a delivered order. Invoked
// synchronously on the delivered transition; failures are logged and swallowed
// because the backfill job can always repair the rollups later.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string) error
}

// Pricing holds the charges applied on top of the item subtotal.
type Pricing struct {
	TaxRate     decimal.Decimal // percent of the subtotal
	DeliveryFee decimal.Decimal // flat fee per order
}

// Tax returns the tax amount for a subtotal, rounded to 2 decimal places.
func (p Pricing) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
}

// Service owns the order lifecycle: creation, status transitions, agent
// assignment, and payment settlement.
type Service struct {
	orders     Repository
	products   product.Repository
	coupons    coupon.Validator
	notifier   Notifier
	reconciler Reconciler
	pricing    Pricing
	lg         *zap.Logger

	now func() time.Time
}

// NewService creates an order Service. notifier and reconciler may be nil in
// tests; pricing must carry the configured tax rate and delivery fee.
func NewService(
	orders Repository,
	products product.Repository,
	coupons coupon.Validator,
	notifier Notifier,
	reconciler Reconciler,
	pricing Pricing,
	lg *zap.Logger,
) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		orders:     orders,
		products:   products,
		coupons:    coupons,
		notifier:   notifier,
		reconciler: reconciler,
		pricing:    pricing,
		lg:         lg,
		now:        time.Now,
	}
}

// ItemRequest is one requested line: a product reference and a quantity.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	CustomerID    string
	Items         []ItemRequest
	Address       string
	PaymentMethod PaymentMethod
	CouponCode    string
}

// ErrAddressRequired rejects orders without a delivery address.
var ErrAddressRequired = errors.New("delivery address required")

// ErrInvalidPaymentMethod rejects unknown payment methods.
var ErrInvalidPaymentMethod = errors.New("payment method must be cod or online")

// Create validates the request, snapshots product prices into line items,
// applies an optional coupon, computes totals, and persists the order in
// status pending. Connected admins are notified of the new order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.Address == "" {
		return nil, ErrAddressRequired
	}
	if req.PaymentMethod != PaymentCOD && req.PaymentMethod != PaymentOnline {
		return nil, ErrInvalidPaymentMethod
	}

	// Validate quantities and collect product IDs for a single batch fetch.
	ids := make([]string, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
		ids[i] = it.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Snapshot name and unit price per line so catalog edits never change a
	// placed order.
	items := make([]Item, len(req.Items))
	for i, it := range req.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		}
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}

	discount := decimal.Zero
	if req.CouponCode != "" {
		discount, err = s.coupons.Validate(ctx, req.CouponCode, subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
	}

	tax := s.pricing.Tax(subtotal)
	subtotal, total := ComputeTotals(items, tax, s.pricing.DeliveryFee, discount)

	o := &Order{
		ID:            uuid.New().String(),
		CustomerID:    req.CustomerID,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           tax,
		DeliveryFee:   s.pricing.DeliveryFee,
		Discount:      discount,
		Total:         total,
		CouponCode:    req.CouponCode,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		Status:        StatusPending,
		Version:       1,
		CreatedAt:     s.now(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if s.notifier != nil {
		s.notifier.OrderCreated(o)
	}
	return o, nil
}

// Transition applies a status change through the state machine and persists it
// as one atomic, version-guarded update. Side effects on success: the agent's
// active-order count is adjusted in the same transaction, connected parties
// are notified, and a delivered order is handed to the reconciler.
func (s *Service) Transition(ctx context.Context, orderID string, target Status, agentID string, actor user.Actor) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	previous := o.Status
	paymentBefore := o.PaymentStatus
	expectVersion := o.Version
	// Capture the agent before Apply: cancellation clears o.AgentID, but the
	// released agent still needs its active-order decrement.
	agentBefore := o.AgentID

	effective, err := Apply(o, target, agentID, s.now())
	if err != nil {
		return nil, err
	}

	agentDelta := 0
	switch {
	case effective == StatusAssigned:
		agentDelta = 1
	case effective.IsTerminal() && agentBefore != "":
		agentDelta = -1
	}

	if err := s.orders.Update(ctx, o, expectVersion, agentDelta); err != nil {
		return nil, err
	}
	o.Version = expectVersion + 1

	s.lg.Info("order transition",
		zap.String("order_id", o.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(effective)),
		zap.String("actor", actor.UserID),
		zap.String("actor_role", string(actor.Role)),
	)

	if s.notifier != nil {
		s.notifier.OrderStatusChanged(o, previous)
		switch effective {
		case StatusAssigned:
			s.notifier.OrderAssigned(o)
		case StatusCancelled:
			s.notifier.OrderCancelled(o)
		}
		if o.PaymentStatus != paymentBefore {
			s.notifier.PaymentStatusChanged(o)
		}
	}

	if effective == StatusDelivered && s.reconciler != nil {
		// Best effort: the backfill job repairs aggregates if this fails.
		if err := s.reconciler.Reconcile(ctx, o.ID); err != nil {
			s.lg.Error("reconcile delivered order",
				zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

// Assign is the assignment coordinator: it attaches an online, approved agent
// to a confirmed order. The status change and the agent's active-order
// increment commit together; on any failure neither is applied and no
// notification goes out.
func (s *Service) Assign(ctx context.Context, orderID, agentID string, actor user.Actor) (*Order, error) {
	if agentID == "" {
		return nil, ErrAgentRequired
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusConfirmed {
		return nil, ErrOrderNotAssignable
	}

	return s.Transition(ctx, orderID, StatusAssigned, agentID, actor)
}

// MarkPaymentReceived settles an online payment, guarded by the order version.
// Admins are notified so dashboards refresh without polling.
func (s *Service) MarkPaymentReceived(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		return nil, ErrPaymentAlreadySettled
	}

	expectVersion := o.Version
	o.PaymentStatus = PaymentPaid
	if err := s.orders.Update(ctx, o, expectVersion, 0); err != nil {
		return nil, err
	}
	o.Version = expectVersion + 1

	if s.notifier != nil {
		s.notifier.PaymentReceived(o)
		s.notifier.PaymentStatusChanged(o)
	}
	return o, nil
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	return s.orders.List(ctx, f)
}
