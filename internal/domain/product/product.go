package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no product matches the given identifier.
var ErrNotFound = fmt.Errorf("product not found")

// Product is a catalog entry. SalesCount and TotalRevenue are rollups owned by
// the analytics reconciler; nothing else writes them.
type Product struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Category     string
	SalesCount   int64
	TotalRevenue decimal.Decimal
	Rating       decimal.Decimal
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
