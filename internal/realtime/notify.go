package realtime

import (
	"time"

	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/user"
	"github.com/quickbite/delivery-core/internal/metrics"
)

// Compile-time checks: Notifier feeds both domain services.
var (
	_ order.Notifier = (*Notifier)(nil)
	_ user.Notifier  = (*Notifier)(nil)
)

// Notifier adapts domain events onto the hub, picking the audience for each
// event type. It is the only place audiences are decided.
type Notifier struct {
	hub     *Hub
	metrics *metrics.Metrics
}

// NewNotifier creates a Notifier publishing through hub.
func NewNotifier(hub *Hub, m *metrics.Metrics) *Notifier {
	return &Notifier{hub: hub, metrics: m}
}

// OrderCreated notifies connected admins of a new order.
func (n *Notifier) OrderCreated(o *order.Order) {
	n.hub.Publish(OrderNew{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Total:       o.Total,
		Status:      o.Status,
		Timestamp:   time.Now(),
	}, Roles(user.RoleAdmin))
}

// OrderStatusChanged notifies the customer, admins, and the assigned agent.
func (n *Notifier) OrderStatusChanged(o *order.Order, previous order.Status) {
	if n.metrics != nil {
		n.metrics.Transitions.WithLabelValues(string(previous), string(o.Status)).Inc()
	}
	n.hub.Publish(OrderStatusUpdate{
		OrderID:   o.ID,
		Previous:  previous,
		Status:    o.Status,
		Timestamp: time.Now(),
	}, OrderParties(o.CustomerID, o.AgentID))
}

// OrderAssigned notifies the assigned agent and the customer.
func (n *Notifier) OrderAssigned(o *order.Order) {
	n.hub.Publish(OrderAssigned{
		OrderID:   o.ID,
		AgentID:   o.AgentID,
		Address:   o.Address,
		Timestamp: time.Now(),
	}, Users(o.AgentID, o.CustomerID))
}

// OrderCancelled notifies all order parties.
func (n *Notifier) OrderCancelled(o *order.Order) {
	n.hub.Publish(OrderCancelled{
		OrderID:   o.ID,
		Timestamp: time.Now(),
	}, OrderParties(o.CustomerID, o.AgentID))
}

// PaymentReceived notifies admins of a settled payment.
func (n *Notifier) PaymentReceived(o *order.Order) {
	n.hub.Publish(PaymentReceived{
		OrderID:   o.ID,
		Amount:    o.Total,
		Method:    o.PaymentMethod,
		Timestamp: time.Now(),
	}, Roles(user.RoleAdmin))
}

// PaymentStatusChanged notifies all order parties.
func (n *Notifier) PaymentStatusChanged(o *order.Order) {
	n.hub.Publish(PaymentStatusUpdate{
		OrderID:   o.ID,
		Status:    o.PaymentStatus,
		Timestamp: time.Now(),
	}, OrderParties(o.CustomerID, o.AgentID))
}

// AgentStatusChanged notifies admins that an agent went on or off shift.
func (n *Notifier) AgentStatusChanged(u *user.User) {
	n.hub.Publish(AgentStatusUpdate{
		AgentID:   u.ID,
		Online:    u.IsOnline,
		Timestamp: time.Now(),
	}, Roles(user.RoleAdmin))
}
