package user

import (
	"context"

	"github.com/go-faster/errors"
)

// Notifier receives agent events after a successful state change. Delivery is
// best effort; implementations must never block or fail the calling request.
type Notifier interface {
	AgentStatusChanged(u *User)
}

// Service wraps agent lifecycle rules around the user repository.
type Service struct {
	users    Repository
	notifier Notifier
}

// NewService creates a user Service.
func NewService(users Repository, notifier Notifier) *Service {
	return &Service{users: users, notifier: notifier}
}

// Review applies an admin approval decision to a delivery agent.
func (s *Service) Review(ctx context.Context, agentID string, approval Approval, reason string) (*User, error) {
	u, err := s.users.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if u.Role != RoleAgent {
		return nil, ErrNotAgent
	}

	if err := s.users.SetApproval(ctx, agentID, approval, reason); err != nil {
		return nil, errors.Wrap(err, "set approval")
	}
	u.Approval = approval
	u.RejectionReason = reason
	return u, nil
}

// SetOnline toggles an agent's availability. Going offline is rejected with
// ErrAgentHasOrders while the agent still carries active orders; the guard is
// enforced atomically by the repository, not read-then-write here.
func (s *Service) SetOnline(ctx context.Context, agentID string, online bool) (*User, error) {
	u, err := s.users.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if u.Role != RoleAgent {
		return nil, ErrNotAgent
	}

	if err := s.users.SetOnline(ctx, agentID, online); err != nil {
		return nil, err
	}
	u.IsOnline = online

	if s.notifier != nil {
		s.notifier.AgentStatusChanged(u)
	}
	return u, nil
}
