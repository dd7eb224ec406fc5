package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickbite/delivery-core/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get returns a user by id, or user.ErrNotFound.
func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, role, is_online, approval_status, rejection_reason,
			active_orders, created_at
		FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Role, &u.IsOnline, &u.Approval,
		&u.RejectionReason, &u.ActiveOrders, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// Create persists a new user.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, role, is_online, approval_status, rejection_reason, active_orders)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Role, u.IsOnline, u.Approval, u.RejectionReason, u.ActiveOrders,
	)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.ID, err)
	}
	return nil
}

// SetApproval records an admin review decision for a delivery agent.
func (r *UserRepository) SetApproval(ctx context.Context, id string, approval user.Approval, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET approval_status = $1, rejection_reason = $2
		WHERE id = $3 AND role = 'delivery_agent'`,
		approval, reason, id,
	)
	if err != nil {
		return fmt.Errorf("setting approval for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// SetOnline toggles an agent's availability. Going offline while the agent
// still carries active orders fails with user.ErrAgentHasOrders; the guard and
// the write are one atomic statement.
func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool) error {
	query := `UPDATE users SET is_online = $1 WHERE id = $2 AND role = 'delivery_agent'`
	if !online {
		query += ` AND active_orders = 0`
	}
	tag, err := r.pool.Exec(ctx, query, online, id)
	if err != nil {
		return fmt.Errorf("setting online for %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if online {
		return user.ErrNotFound
	}
	var active int
	err = r.pool.QueryRow(ctx,
		`SELECT active_orders FROM users WHERE id = $1 AND role = 'delivery_agent'`, id,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}
		return fmt.Errorf("checking agent %q: %w", id, err)
	}
	if active > 0 {
		return user.ErrAgentHasOrders
	}
	return user.ErrNotFound
}
