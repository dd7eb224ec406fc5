package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Transitions between statuses are
// validated by the state machine in machine.go; nothing else may change it.
type Status string

const (
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusAssigned        Status = "assigned"
	StatusOutForDelivery  Status = "out_for_delivery"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusAssigned, StatusOutForDelivery,
		StatusAwaitingPayment, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentMethod distinguishes cash-on-delivery from online payments.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentOnline PaymentMethod = "online"
)

// PaymentStatus tracks settlement of an order's payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Item is a single order line with the product name and unit price snapshotted
// at creation time, so later catalog edits never change a placed order.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns unit price multiplied by quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Order is the persisted order document, the source of truth for lifecycle
// state. Version guards concurrent updates: every accepted transition bumps it,
// and a write against a stale version fails with ErrConcurrentModification.
type Order struct {
	ID          string
	OrderNumber int64
	CustomerID  string
	Items       []Item

	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	CouponCode  string

	Address       string
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus

	Status  Status
	AgentID string // empty unless an agent is assigned
	Version int64

	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	AssignedAt   *time.Time
	PickedUpAt   *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	ReconciledAt *time.Time
}

// ComputeTotals derives the subtotal from the line items and the grand total
// from subtotal + tax + deliveryFee - discount, floored at zero. Totals are
// computed exactly once at creation; transitions never touch them.
func ComputeTotals(items []Item, tax, deliveryFee, discount decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	total = subtotal.Add(tax).Add(deliveryFee).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return subtotal.Round(2), total.Round(2)
}

// ListFilter narrows List queries; zero values match everything.
type ListFilter struct {
	Status  Status
	AgentID string
}
