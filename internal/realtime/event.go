// Package realtime pushes domain events to connected clients over WebSocket.
//
// The event catalog is a closed set of typed payloads; there are no loose
// map-based events. Delivery is fire-and-forget and at-most-once: a
// disconnected target simply misses the event and recovers state on its next
// REST fetch.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/user"
)

// Type names a realtime event on the wire.
type Type string

const (
	TypeOrderNew            Type = "order:new"
	TypeOrderStatusUpdate   Type = "order:status:update"
	TypeOrderAssigned       Type = "order:assigned"
	TypeOrderCancelled      Type = "order:cancelled"
	TypePaymentReceived     Type = "payment:received"
	TypePaymentStatusUpdate Type = "payment:status:update"
	TypeAgentStatusUpdate   Type = "delivery:agent:status:update"
)

// Event is one member of the closed catalog below.
type Event interface {
	EventType() Type
}

// OrderNew announces a freshly created order to admins.
type OrderNew struct {
	OrderID     string          `json:"orderId"`
	OrderNumber int64           `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	Total       decimal.Decimal `json:"total"`
	Status      order.Status    `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

func (OrderNew) EventType() Type { return TypeOrderNew }

// OrderStatusUpdate announces a lifecycle transition.
type OrderStatusUpdate struct {
	OrderID   string       `json:"orderId"`
	Previous  order.Status `json:"previous"`
	Status    order.Status `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

func (OrderStatusUpdate) EventType() Type { return TypeOrderStatusUpdate }

// OrderAssigned tells the agent and the customer who is delivering the order.
type OrderAssigned struct {
	OrderID   string    `json:"orderId"`
	AgentID   string    `json:"agentId"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderAssigned) EventType() Type { return TypeOrderAssigned }

// OrderCancelled announces a cancellation to all order parties.
type OrderCancelled struct {
	OrderID   string    `json:"orderId"`
	Timestamp time.Time `json:"timestamp"`
}

func (OrderCancelled) EventType() Type { return TypeOrderCancelled }

// PaymentReceived announces a settled payment to admins.
type PaymentReceived struct {
	OrderID   string              `json:"orderId"`
	Amount    decimal.Decimal     `json:"amount"`
	Method    order.PaymentMethod `json:"method"`
	Timestamp time.Time           `json:"timestamp"`
}

func (PaymentReceived) EventType() Type { return TypePaymentReceived }

// PaymentStatusUpdate announces a payment-status change to order parties.
type PaymentStatusUpdate struct {
	OrderID   string              `json:"orderId"`
	Status    order.PaymentStatus `json:"paymentStatus"`
	Timestamp time.Time           `json:"timestamp"`
}

func (PaymentStatusUpdate) EventType() Type { return TypePaymentStatusUpdate }

// AgentStatusUpdate announces an agent going online or offline.
type AgentStatusUpdate struct {
	AgentID   string    `json:"agentId"`
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

func (AgentStatusUpdate) EventType() Type { return TypeAgentStatusUpdate }

// envelope is the wire frame wrapping every event.
type envelope struct {
	Type    Type  `json:"type"`
	Payload Event `json:"payload"`
}

// Encode serializes an event into its wire frame.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(envelope{Type: e.EventType(), Payload: e})
}

// Audience is the resolved target set for a publish: explicit users plus whole
// roles. The zero value targets nobody.
type Audience struct {
	UserIDs []string
	Roles   []user.Role
}

// Users targets specific user ids.
func Users(ids ...string) Audience {
	return Audience{UserIDs: ids}
}

// Roles targets every connected session of the given roles.
func Roles(roles ...user.Role) Audience {
	return Audience{Roles: roles}
}

// OrderParties targets everyone with a stake in an order: all admins, the
// customer, and the assigned agent when there is one.
func OrderParties(customerID, agentID string) Audience {
	ids := []string{customerID}
	if agentID != "" {
		ids = append(ids, agentID)
	}
	return Audience{UserIDs: ids, Roles: []user.Role{user.RoleAdmin}}
}
