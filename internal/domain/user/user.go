package user

import (
	"context"
	"fmt"
	"time"
)

// Role partitions connected actors; fan-out audiences are resolved per role.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "delivery_agent"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAgent || r == RoleAdmin
}

// Approval is the admin review state of a delivery agent.
type Approval string

const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// User covers every actor role; the agent fields are meaningful only when
// Role is RoleAgent.
type User struct {
	ID   string
	Name string
	Role Role

	IsOnline        bool
	Approval        Approval
	RejectionReason string
	ActiveOrders    int

	CreatedAt time.Time
}

// Available reports whether the agent may receive a new assignment.
func (u *User) Available() bool {
	return u.Role == RoleAgent && u.IsOnline && u.Approval == ApprovalApproved
}

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// Sentinel errors for agent lifecycle rules.
var (
	ErrNotFound         = fmt.Errorf("user not found")
	ErrNotAgent         = fmt.Errorf("user is not a delivery agent")
	ErrAgentHasOrders   = fmt.Errorf("agent has active orders and cannot go offline")
	ErrAgentUnavailable = fmt.Errorf("agent is offline or not approved")
)

// Repository defines persistence operations for users and delivery agents.
// SetOnline(id, false) must fail with ErrAgentHasOrders while the agent's
// active-order count is above zero; the check and the write are one atomic
// statement in the Postgres implementation.
type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) error
	SetApproval(ctx context.Context, id string, approval Approval, reason string) error
	SetOnline(ctx context.Context, id string, online bool) error
}
