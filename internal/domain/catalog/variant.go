// Package catalog exposes read-only product variant snapshots to the cart and
// order flows. Variant pricing is owned by the catalog; this core only copies
// it at well-defined points in time.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// Variant is the purchasable unit of a product: one SKU with its current sale
// price and tax rate.
type Variant struct {
	ID        string
	ProductID string
	SKU       string
	Title     string
	PriceSale decimal.Decimal
	TaxRate   decimal.Decimal
	IsActive  bool
}

// Repository defines read operations against the catalog snapshot source.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Variant, error)
	// GetByIDs fetches all requested variants in a single query. Missing IDs
	// are simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Variant, error)
}
