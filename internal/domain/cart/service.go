package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ajaySingh2615/devices/internal/domain/catalog"
	"github.com/ajaySingh2615/devices/internal/domain/coupon"
)

// Service implements cart aggregation: lazy creation per identity, item
// mutations with snapshot capture, merge-on-login, and coupon caching.
type Service struct {
	carts    Repository
	variants catalog.Repository
	coupons  *coupon.Service
}

// NewService creates a cart Service with the required collaborators.
func NewService(carts Repository, variants catalog.Repository, coupons *coupon.Service) *Service {
	return &Service{
		carts:    carts,
		variants: variants,
		coupons:  coupons,
	}
}

// GetOrCreate resolves the cart for the identity, creating an empty one bound
// to whichever side of the identity is present, and returns it hydrated.
func (s *Service) GetOrCreate(ctx context.Context, id Identity) (*View, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c, err := s.resolveOrCreate(ctx, s.carts, id)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, s.carts, c)
}

// AddItem puts quantity units of a variant into the identity's cart. An
// existing line for the variant is incremented in place, keeping its original
// price/tax snapshot; a new line snapshots the variant's current price and
// tax rate.
func (s *Service) AddItem(ctx context.Context, id Identity, variantID string, quantity int) (*View, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, ErrQuantityInvalid
	}

	v, err := s.variants.GetByID(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if !v.IsActive {
		return nil, ErrVariantInactive
	}

	var c *Cart
	err = s.carts.InTx(ctx, func(r Repository) error {
		c, err = s.resolveOrCreate(ctx, r, id)
		if err != nil {
			return err
		}

		existing, err := r.FindItemByVariant(ctx, c.ID, variantID)
		switch {
		case err == nil:
			return r.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+quantity)
		case errors.Is(err, ErrItemNotFound):
			return r.InsertItem(ctx, &Item{
				ID:              uuid.New().String(),
				CartID:          c.ID,
				VariantID:       variantID,
				Quantity:        quantity,
				PriceSnapshot:   v.PriceSale,
				TaxRateSnapshot: v.TaxRate,
			})
		default:
			return err
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}

	return s.hydrate(ctx, s.carts, c)
}

// UpdateItem sets the quantity of an item. The item must belong to the
// identity's cart; items on other carts are reported as not found.
func (s *Service) UpdateItem(ctx context.Context, id Identity, itemID string, quantity int) (*View, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, ErrQuantityInvalid
	}

	c, err := s.resolve(ctx, s.carts, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedItem(ctx, c, itemID); err != nil {
		return nil, err
	}
	if err := s.carts.UpdateItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, errors.Wrap(err, "update cart item")
	}

	return s.hydrate(ctx, s.carts, c)
}

// RemoveItem deletes an item after verifying it belongs to the identity's cart.
func (s *Service) RemoveItem(ctx context.Context, id Identity, itemID string) (*View, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c, err := s.resolve(ctx, s.carts, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedItem(ctx, c, itemID); err != nil {
		return nil, err
	}
	if err := s.carts.DeleteItem(ctx, itemID); err != nil {
		return nil, errors.Wrap(err, "remove cart item")
	}

	return s.hydrate(ctx, s.carts, c)
}

// Clear deletes every item but keeps the cart row.
func (s *Service) Clear(ctx context.Context, id Identity) (*View, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c, err := s.resolve(ctx, s.carts, id)
	if err != nil {
		return nil, err
	}
	if err := s.carts.DeleteItems(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	return s.hydrate(ctx, s.carts, c)
}

// ClearAllFor clears the user cart and, when a session id is also present in
// the request context, any still-existing session cart. Order placement calls
// this so a re-submission cannot double-spend the same items.
func (s *Service) ClearAllFor(ctx context.Context, userID, sessionID string) error {
	return s.carts.InTx(ctx, func(r Repository) error {
		if userID != "" {
			if c, err := r.FindByUser(ctx, userID); err == nil {
				if err := r.DeleteItems(ctx, c.ID); err != nil {
					return err
				}
			} else if !errors.Is(err, ErrCartNotFound) {
				return err
			}
		}
		if sessionID != "" {
			if c, err := r.FindBySession(ctx, sessionID); err == nil {
				if err := r.DeleteItems(ctx, c.ID); err != nil {
					return err
				}
			} else if !errors.Is(err, ErrCartNotFound) {
				return err
			}
		}
		return nil
	})
}

// Merge folds an anonymous session cart into the user's cart after login.
//
// With no session cart the user cart is returned (created if absent). With no
// user cart the session cart row is re-bound to the user. When both exist,
// quantities are summed per variant — the user item's price/tax snapshot wins
// and the session item's snapshot is discarded — and remaining session items
// are re-parented. The emptied session cart row is deleted.
func (s *Service) Merge(ctx context.Context, userID, sessionID string) (*View, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrIdentityInvalid
	}

	var merged *Cart
	err := s.carts.InTx(ctx, func(r Repository) error {
		sessionCart, err := r.FindBySession(ctx, sessionID)
		if errors.Is(err, ErrCartNotFound) {
			merged, err = s.resolveOrCreate(ctx, r, UserIdentity(userID))
			return err
		}
		if err != nil {
			return err
		}

		userCart, err := r.FindByUser(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			// Reuse the session cart row as the new user cart.
			if err := r.BindToUser(ctx, sessionCart.ID, userID); err != nil {
				return err
			}
			sessionCart.UserID = userID
			sessionCart.SessionID = ""
			merged = sessionCart
			return nil
		}
		if err != nil {
			return err
		}

		sessionItems, err := r.Items(ctx, sessionCart.ID)
		if err != nil {
			return err
		}
		for i := range sessionItems {
			si := &sessionItems[i]
			existing, err := r.FindItemByVariant(ctx, userCart.ID, si.VariantID)
			switch {
			case err == nil:
				if err := r.UpdateItemQuantity(ctx, existing.ID, existing.Quantity+si.Quantity); err != nil {
					return err
				}
				if err := r.DeleteItem(ctx, si.ID); err != nil {
					return err
				}
			case errors.Is(err, ErrItemNotFound):
				if err := r.ReassignItem(ctx, si.ID, userCart.ID); err != nil {
					return err
				}
			default:
				return err
			}
		}

		if err := r.Delete(ctx, sessionCart.ID); err != nil {
			return err
		}
		merged = userCart
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "merge carts")
	}

	zctx.From(ctx).Info("Carts merged",
		zap.String("user_id", userID),
		zap.String("cart_id", merged.ID),
	)

	return s.hydrate(ctx, s.carts, merged)
}

// ApplyCoupon validates the code against the cart subtotal and caches the
// resulting discount and final total on the cart row.
func (s *Service) ApplyCoupon(ctx context.Context, id Identity, code string) (*coupon.Application, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c, err := s.resolveOrCreate(ctx, s.carts, id)
	if err != nil {
		return nil, err
	}
	items, err := s.carts.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}

	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].Subtotal())
	}

	app, err := s.coupons.Apply(ctx, code, subtotal, id.UserID)
	if err != nil {
		return nil, err
	}

	discount := app.DiscountAmount
	final := app.FinalAmount
	if err := s.carts.SetCoupon(ctx, c.ID, app.Coupon.ID, &discount, &final); err != nil {
		return nil, errors.Wrap(err, "cache coupon on cart")
	}

	return app, nil
}

// RemoveCoupon clears the cached coupon state from the cart row.
func (s *Service) RemoveCoupon(ctx context.Context, id Identity) (*View, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	c, err := s.resolveOrCreate(ctx, s.carts, id)
	if err != nil {
		return nil, err
	}
	if err := s.carts.SetCoupon(ctx, c.ID, "", nil, nil); err != nil {
		return nil, errors.Wrap(err, "clear coupon on cart")
	}
	c.CouponID = ""
	c.CouponCode = ""
	c.CouponDiscount = nil
	c.FinalTotal = nil

	return s.hydrate(ctx, s.carts, c)
}

// resolve finds the cart for an identity without creating one.
func (s *Service) resolve(ctx context.Context, r Repository, id Identity) (*Cart, error) {
	if id.UserID != "" {
		return r.FindByUser(ctx, id.UserID)
	}
	return r.FindBySession(ctx, id.SessionID)
}

// resolveOrCreate finds the cart for an identity, creating an empty one bound
// to the identity when absent.
func (s *Service) resolveOrCreate(ctx context.Context, r Repository, id Identity) (*Cart, error) {
	c, err := s.resolve(ctx, r, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, err
	}

	c = &Cart{
		ID:        uuid.New().String(),
		UserID:    id.UserID,
		SessionID: id.SessionID,
	}
	if err := r.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// ownedItem loads an item and verifies it belongs to the given cart.
// Ownership mismatches are indistinguishable from missing items.
func (s *Service) ownedItem(ctx context.Context, c *Cart, itemID string) (*Item, error) {
	it, err := s.carts.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.CartID != c.ID {
		return nil, ErrItemNotFound
	}
	return it, nil
}

func (s *Service) hydrate(ctx context.Context, r Repository, c *Cart) (*View, error) {
	items, err := r.Items(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}
	return buildView(c, items), nil
}
