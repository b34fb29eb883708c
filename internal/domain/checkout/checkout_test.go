package checkout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
	"github.com/ajaySingh2615/devices/internal/domain/catalog"
)

// stubCartRepo serves a single pre-built cart. Only the read path used by
// Summarize is implemented; the embedded interface panics on anything else.
type stubCartRepo struct {
	cart.Repository
	cart  *cart.Cart
	items []cart.Item
}

func (s *stubCartRepo) FindByUser(_ context.Context, userID string) (*cart.Cart, error) {
	if s.cart != nil && s.cart.UserID == userID {
		return s.cart, nil
	}
	return nil, cart.ErrCartNotFound
}

func (s *stubCartRepo) FindBySession(_ context.Context, sessionID string) (*cart.Cart, error) {
	if s.cart != nil && s.cart.SessionID == sessionID {
		return s.cart, nil
	}
	return nil, cart.ErrCartNotFound
}

func (s *stubCartRepo) Create(_ context.Context, c *cart.Cart) error {
	s.cart = c
	return nil
}

func (s *stubCartRepo) Items(_ context.Context, _ string) ([]cart.Item, error) {
	return s.items, nil
}

type stubCatalogRepo struct{ catalog.Repository }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() Config {
	return Config{
		FlatRate:      dec("49"),
		FreeThreshold: dec("999"),
	}
}

func newSummarizer(repo *stubCartRepo) *Service {
	carts := cart.NewService(repo, &stubCatalogRepo{}, nil)
	return NewService(carts, testConfig())
}

func item(variantID string, qty int, price, taxRate string) cart.Item {
	return cart.Item{
		ID:              "item-" + variantID,
		CartID:          "cart-1",
		VariantID:       variantID,
		Quantity:        qty,
		PriceSnapshot:   dec(price),
		TaxRateSnapshot: dec(taxRate),
	}
}

func TestSummarize_FreeShippingAtThreshold(t *testing.T) {
	repo := &stubCartRepo{
		cart:  &cart.Cart{ID: "cart-1", UserID: "user-1"},
		items: []cart.Item{item("var-1", 2, "600.00", "18")},
	}
	svc := newSummarizer(repo)

	sum, err := svc.Summarize(context.Background(), cart.UserIdentity("user-1"))
	require.NoError(t, err)

	assert.Equal(t, "1200", sum.Subtotal.String())
	assert.True(t, sum.Shipping.IsZero())
	assert.Equal(t, "216", sum.Tax.String())
	assert.True(t, sum.Discount.IsZero())
	assert.Equal(t, "1416", sum.GrandTotal.String())
	assert.Len(t, sum.Items, 1)
}

func TestSummarize_FlatRateBelowThreshold(t *testing.T) {
	repo := &stubCartRepo{
		cart:  &cart.Cart{ID: "cart-1", UserID: "user-1"},
		items: []cart.Item{item("var-2", 1, "199.00", "12")},
	}
	svc := newSummarizer(repo)

	sum, err := svc.Summarize(context.Background(), cart.UserIdentity("user-1"))
	require.NoError(t, err)

	assert.Equal(t, "199", sum.Subtotal.String())
	assert.Equal(t, "49", sum.Shipping.String())
	assert.Equal(t, "23.88", sum.Tax.String())
	// 199 + 49 + 23.88
	assert.Equal(t, "271.88", sum.GrandTotal.String())
}

func TestSummarize_AppliesCachedCouponDiscount(t *testing.T) {
	discount := dec("120")
	final := dec("1080")
	repo := &stubCartRepo{
		cart: &cart.Cart{
			ID:             "cart-1",
			UserID:         "user-1",
			CouponID:       "cpn-1",
			CouponCode:     "WELCOME10",
			CouponDiscount: &discount,
			FinalTotal:     &final,
		},
		items: []cart.Item{item("var-1", 2, "600.00", "18")},
	}
	svc := newSummarizer(repo)

	sum, err := svc.Summarize(context.Background(), cart.UserIdentity("user-1"))
	require.NoError(t, err)

	assert.Equal(t, "cpn-1", sum.AppliedCouponID)
	assert.Equal(t, "WELCOME10", sum.AppliedCoupon)
	assert.Equal(t, "120", sum.Discount.String())
	// 1200 + 0 + 216 - 120
	assert.Equal(t, "1296", sum.GrandTotal.String())
}

func TestSummarize_GrandTotalFlooredAtZero(t *testing.T) {
	discount := dec("5000")
	repo := &stubCartRepo{
		cart: &cart.Cart{
			ID:             "cart-1",
			UserID:         "user-1",
			CouponID:       "cpn-big",
			CouponDiscount: &discount,
		},
		items: []cart.Item{item("var-2", 1, "199.00", "12")},
	}
	svc := newSummarizer(repo)

	sum, err := svc.Summarize(context.Background(), cart.UserIdentity("user-1"))
	require.NoError(t, err)

	assert.True(t, sum.GrandTotal.IsZero())
}

func TestSummarize_EmptyCart(t *testing.T) {
	svc := newSummarizer(&stubCartRepo{})

	// An identity without a cart gets one created and an all-zero quote.
	sum, err := svc.Summarize(context.Background(), cart.SessionIdentity("sess-1"))
	require.NoError(t, err)

	assert.Empty(t, sum.Items)
	assert.True(t, sum.Subtotal.IsZero())
	assert.Equal(t, "49", sum.Shipping.String())
	assert.Equal(t, "49", sum.GrandTotal.String())
}

func TestSummarize_Idempotent(t *testing.T) {
	repo := &stubCartRepo{
		cart:  &cart.Cart{ID: "cart-1", UserID: "user-1"},
		items: []cart.Item{item("var-1", 2, "600.00", "18")},
	}
	svc := newSummarizer(repo)

	first, err := svc.Summarize(context.Background(), cart.UserIdentity("user-1"))
	require.NoError(t, err)
	second, err := svc.Summarize(context.Background(), cart.UserIdentity("user-1"))
	require.NoError(t, err)

	assert.True(t, first.GrandTotal.Equal(second.GrandTotal))
	assert.True(t, first.Subtotal.Equal(second.Subtotal))
	assert.True(t, first.Shipping.Equal(second.Shipping))
}
