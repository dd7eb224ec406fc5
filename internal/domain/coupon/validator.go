package coupon

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var _ Validator = (*RepoValidator)(nil)

// RepoValidator validates coupon codes against the repository, with an
// optional bloom filter warmed from the active code set so that garbage codes
// are rejected without a database round trip. False positives fall through to
// the repository lookup, so correctness never depends on the filter.
type RepoValidator struct {
	repo Repository

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewRepoValidator creates a validator backed by the given repository.
// Call Warm to enable the bloom fast path.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo}
}

// Warm loads all active coupon codes into a fresh bloom filter. Safe to call
// again later to refresh; lookups in flight keep using the previous filter.
func (v *RepoValidator) Warm(ctx context.Context) error {
	codes, err := v.repo.ActiveCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "load active codes")
	}

	n := uint(len(codes))
	if n < 1024 {
		n = 1024
	}
	f := bloom.NewWithEstimates(n, 0.001)
	for _, code := range codes {
		f.AddString(code)
	}

	v.mu.Lock()
	v.filter = f
	v.mu.Unlock()
	return nil
}

// Validate resolves code to a discount amount for the given subtotal.
// Unknown and inactive codes yield ErrInvalidCoupon.
func (v *RepoValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if code == "" {
		return decimal.Zero, ErrInvalidCoupon
	}

	v.mu.RLock()
	f := v.filter
	v.mu.RUnlock()
	if f != nil && !f.TestString(code) {
		return decimal.Zero, ErrInvalidCoupon
	}

	c, err := v.repo.GetByCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if !c.Active {
		return decimal.Zero, ErrInvalidCoupon
	}
	return c.Discount(subtotal), nil
}
