package coupon

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidCoupon is returned for unknown, inactive, or malformed codes.
var ErrInvalidCoupon = fmt.Errorf("invalid coupon code")

// Type selects how a coupon's value is applied to the order subtotal.
type Type string

const (
	TypeFlat    Type = "flat"    // fixed amount off
	TypePercent Type = "percent" // percentage of the subtotal
)

// Coupon is a discount code from the promotions table.
type Coupon struct {
	Code   string
	Type   Type
	Value  decimal.Decimal
	Active bool
}

// Discount computes the amount taken off an order with the given subtotal.
// The result never exceeds the subtotal.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case TypePercent:
		d = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	default:
		d = c.Value
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	return d.Round(2)
}

// Repository defines persistence operations for coupons.
type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	ActiveCodes(ctx context.Context) ([]string, error)
}

// Validator resolves a coupon code to a discount amount for a subtotal.
type Validator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error)
}
