package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickbite/delivery-core/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByCode returns a coupon by its code. Unknown codes map to
// coupon.ErrInvalidCoupon so callers need not special-case missing rows.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := r.pool.QueryRow(ctx, `
		SELECT code, discount_type, discount_value, active
		FROM coupons WHERE code = $1`, code,
	).Scan(&c.Code, &c.Type, &c.Value, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("getting coupon %q: %w", code, err)
	}
	return &c, nil
}

// ActiveCodes returns every active coupon code, used to warm the validator's
// bloom filter.
func (r *CouponRepository) ActiveCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM coupons WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("listing active coupons: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning coupon code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
