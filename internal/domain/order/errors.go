package order

import "fmt"

// Sentinel errors surfaced by the order service. The handler layer maps them
// to HTTP status codes (409 for lifecycle conflicts, 404 for missing rows).
var (
	ErrNotFound               = fmt.Errorf("order not found")
	ErrConcurrentModification = fmt.Errorf("order modified concurrently, re-fetch and retry")
	ErrOrderNotAssignable     = fmt.Errorf("order is not in an assignable state")
	ErrAgentRequired          = fmt.Errorf("delivery agent required for assignment")
	ErrPaymentAlreadySettled  = fmt.Errorf("payment already settled")
	ErrEmptyItems             = fmt.Errorf("items required")
)

// InvalidTransitionError reports a requested status change that is not an edge
// of the lifecycle graph.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// TerminalStateError reports a transition attempted from a terminal status.
type TerminalStateError struct {
	Status Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("order is in terminal state %s", e.Status)
}

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}
