package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickbite/delivery-core/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash returns the key record and the owning user's role, or
// auth.ErrUnknownKey when the hash is unknown.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.Key, error) {
	var k auth.Key
	err := r.pool.QueryRow(ctx, `
		SELECT k.id, k.key_hash, k.user_id, u.role
		FROM api_keys k JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = $1`, hash,
	).Scan(&k.ID, &k.KeyHash, &k.UserID, &k.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnknownKey
		}
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	return &k, nil
}

// Insert stores a new API key.
func (r *APIKeyRepository) Insert(ctx context.Context, k *auth.Key) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO NOTHING`,
		k.ID, k.KeyHash, k.UserID,
	)
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}
