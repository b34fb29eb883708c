// Package cart owns shopping carts for authenticated users and anonymous
// sessions: line items with frozen price/tax snapshots, computed totals, and
// the merge that runs when a session signs in.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart operations.
var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("cart item not found")
	// ErrVariantInactive is returned when the referenced variant exists but
	// is disabled for purchase.
	ErrVariantInactive = errors.New("variant is not available")
	// ErrQuantityInvalid is returned for quantities below 1.
	ErrQuantityInvalid = errors.New("quantity must be at least 1")
	// ErrIdentityInvalid is returned when neither or both of user id and
	// session id are supplied.
	ErrIdentityInvalid = errors.New("exactly one of user id or session id required")
)

// Identity keys a cart: an authenticated user id or an anonymous session id,
// never both.
type Identity struct {
	UserID    string
	SessionID string
}

// UserIdentity returns an Identity for an authenticated user.
func UserIdentity(userID string) Identity { return Identity{UserID: userID} }

// SessionIdentity returns an Identity for an anonymous session.
func SessionIdentity(sessionID string) Identity { return Identity{SessionID: sessionID} }

// Validate ensures exactly one side of the identity is set.
func (id Identity) Validate() error {
	if (id.UserID == "") == (id.SessionID == "") {
		return ErrIdentityInvalid
	}
	return nil
}

// Cart is the persistent cart row. The coupon trio (CouponID, CouponDiscount,
// FinalTotal) is the only cached state; everything else is recomputed from
// live item rows on every read.
type Cart struct {
	ID        string
	UserID    string
	SessionID string

	CouponID       string
	CouponCode     string
	CouponDiscount *decimal.Decimal
	FinalTotal     *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is a cart line. PriceSnapshot and TaxRateSnapshot are frozen at
// add-time and never re-read from the catalog.
type Item struct {
	ID              string
	CartID          string
	VariantID       string
	Quantity        int
	PriceSnapshot   decimal.Decimal
	TaxRateSnapshot decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Subtotal returns price snapshot times quantity.
func (i *Item) Subtotal() decimal.Decimal {
	return i.PriceSnapshot.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// TaxAmount returns the tax on the subtotal at the frozen rate.
func (i *Item) TaxAmount() decimal.Decimal {
	return i.Subtotal().Mul(i.TaxRateSnapshot.Div(hundred))
}

// Total returns subtotal plus tax.
func (i *Item) Total() decimal.Decimal {
	return i.Subtotal().Add(i.TaxAmount())
}

var hundred = decimal.NewFromInt(100)

// View is a fully hydrated cart: the row, its items in insertion order, and
// totals computed fresh from those items.
type View struct {
	Cart       Cart
	Items      []Item
	TotalItems int
	Subtotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal

	// CouponDiscount and FinalTotal mirror the cached coupon state; both are
	// zero-valued when no coupon is applied (FinalTotal then equals GrandTotal).
	CouponDiscount decimal.Decimal
	FinalTotal     decimal.Decimal
}

// buildView computes totals over the given items.
func buildView(c *Cart, items []Item) *View {
	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].Subtotal())
		taxTotal = taxTotal.Add(items[i].TaxAmount())
	}
	grand := subtotal.Add(taxTotal)

	v := &View{
		Cart:       *c,
		Items:      items,
		TotalItems: len(items),
		Subtotal:   subtotal,
		TaxTotal:   taxTotal,
		GrandTotal: grand,
		FinalTotal: grand,
	}
	if c.CouponDiscount != nil {
		v.CouponDiscount = *c.CouponDiscount
	}
	if c.FinalTotal != nil {
		v.FinalTotal = *c.FinalTotal
	}
	return v
}

// Repository defines persistence operations for carts and their items.
// FindByUser/FindBySession return ErrCartNotFound when no cart exists.
type Repository interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	FindBySession(ctx context.Context, sessionID string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	// BindToUser re-keys a session cart to the given user id and clears its
	// session id, reusing the cart row.
	BindToUser(ctx context.Context, cartID, userID string) error
	Delete(ctx context.Context, cartID string) error

	Items(ctx context.Context, cartID string) ([]Item, error)
	FindItem(ctx context.Context, itemID string) (*Item, error)
	FindItemByVariant(ctx context.Context, cartID, variantID string) (*Item, error)
	InsertItem(ctx context.Context, it *Item) error
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error
	// ReassignItem moves an item onto another cart.
	ReassignItem(ctx context.Context, itemID, cartID string) error
	DeleteItem(ctx context.Context, itemID string) error
	DeleteItems(ctx context.Context, cartID string) error

	// SetCoupon caches the applied coupon and its derived discount/final
	// total on the cart row; nil values clear the cache.
	SetCoupon(ctx context.Context, cartID, couponID string, discount, finalTotal *decimal.Decimal) error

	// InTx runs fn against a repository bound to a single database
	// transaction, committing on nil and rolling back on error.
	InTx(ctx context.Context, fn func(Repository) error) error
}
