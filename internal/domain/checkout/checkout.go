// Package checkout computes transient order quotes: cart totals plus shipping
// estimate minus any cached coupon discount. Summaries are never persisted.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
)

// Summary is a quote of what an order would cost if placed right now. It is
// recomputed on every request and cached nowhere beyond the response.
type Summary struct {
	Items           []cart.Item
	Subtotal        decimal.Decimal
	Shipping        decimal.Decimal
	Tax             decimal.Decimal
	AppliedCouponID string
	AppliedCoupon   string
	Discount        decimal.Decimal
	GrandTotal      decimal.Decimal
}

// Config holds the shipping estimate parameters.
type Config struct {
	// FlatRate is charged when the cart subtotal is below FreeThreshold.
	FlatRate      decimal.Decimal
	FreeThreshold decimal.Decimal
}

// Service computes checkout summaries over freshly resolved carts.
type Service struct {
	carts *cart.Service
	cfg   Config
}

// NewService creates a checkout Service with the given shipping parameters.
func NewService(carts *cart.Service, cfg Config) *Service {
	return &Service{carts: carts, cfg: cfg}
}

// Summarize resolves the identity's cart and combines its totals with a
// shipping estimate and the cart's cached coupon discount. It performs no
// writes; calling it twice without mutating the cart yields identical
// results. The grand total is floored at zero.
func (s *Service) Summarize(ctx context.Context, id cart.Identity) (*Summary, error) {
	view, err := s.carts.GetOrCreate(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "resolve cart")
	}

	shipping := s.estimateShipping(view.Subtotal)
	discount := view.CouponDiscount

	grand := view.Subtotal.Add(shipping).Add(view.TaxTotal).Sub(discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	return &Summary{
		Items:           view.Items,
		Subtotal:        view.Subtotal,
		Shipping:        shipping,
		Tax:             view.TaxTotal,
		AppliedCouponID: view.Cart.CouponID,
		AppliedCoupon:   view.Cart.CouponCode,
		Discount:        discount,
		GrandTotal:      grand,
	}, nil
}

// estimateShipping returns the flat rate below the free-shipping threshold,
// zero otherwise.
func (s *Service) estimateShipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.cfg.FreeThreshold) {
		return decimal.Zero
	}
	return s.cfg.FlatRate
}
