package order

import "time"

// edges is the allowed-transition table. Every status change in the system
// goes through Apply against this table; route handlers never mutate Status
// directly.
var edges = map[Status][]Status{
	StatusPending:         {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusAssigned, StatusCancelled},
	StatusAssigned:        {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery:  {StatusDelivered, StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from→to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Apply validates the requested transition and mutates o in place: status,
// agent reference, payment settlement, and the per-transition timestamp.
// It returns the effective status, which may differ from target in one case:
// a cash-on-delivery order asked to go out_for_delivery→delivered before the
// cash is collected is routed to awaiting_payment instead.
//
// Apply only mutates o; persisting the result (atomically, guarded by
// o.Version) is the caller's job.
func Apply(o *Order, target Status, agentID string, now time.Time) (Status, error) {
	if o.Status.IsTerminal() {
		return o.Status, &TerminalStateError{Status: o.Status}
	}

	effective := target
	if target == StatusDelivered && o.PaymentStatus != PaymentPaid {
		switch {
		case o.PaymentMethod == PaymentCOD && o.Status == StatusOutForDelivery:
			// Cash not yet collected: hold at awaiting_payment.
			effective = StatusAwaitingPayment
		case o.PaymentMethod == PaymentCOD && o.Status == StatusAwaitingPayment:
			// Handover implies the cash changed hands.
			o.PaymentStatus = PaymentPaid
		default:
			return o.Status, &InvalidTransitionError{From: o.Status, To: target}
		}
	}

	if !CanTransition(o.Status, effective) {
		return o.Status, &InvalidTransitionError{From: o.Status, To: effective}
	}

	switch effective {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusAssigned:
		if agentID == "" {
			return o.Status, ErrAgentRequired
		}
		o.AgentID = agentID
		o.AssignedAt = &now
	case StatusOutForDelivery:
		o.PickedUpAt = &now
	case StatusAwaitingPayment:
		// No dedicated timestamp: the order is still out with the agent.
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
		// A cancelled order carries no agent reference; releasing the agent's
		// active-order slot is the caller's job.
		o.AgentID = ""
		if o.PaymentStatus == PaymentPaid && o.PaymentMethod == PaymentOnline {
			o.PaymentStatus = PaymentRefunded
		}
	}

	o.Status = effective
	return effective, nil
}
