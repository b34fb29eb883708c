package cart

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaySingh2615/devices/internal/domain/catalog"
	"github.com/ajaySingh2615/devices/internal/domain/coupon"
)

// --- Mock implementations ---

type memRepo struct {
	carts map[string]*Cart
	items map[string]*Item
}

func newMemRepo() *memRepo {
	return &memRepo{
		carts: make(map[string]*Cart),
		items: make(map[string]*Item),
	}
}

func (m *memRepo) FindByUser(_ context.Context, userID string) (*Cart, error) {
	for _, c := range m.carts {
		if c.UserID == userID {
			return c, nil
		}
	}
	return nil, ErrCartNotFound
}

func (m *memRepo) FindBySession(_ context.Context, sessionID string) (*Cart, error) {
	for _, c := range m.carts {
		if c.SessionID == sessionID {
			return c, nil
		}
	}
	return nil, ErrCartNotFound
}

func (m *memRepo) Create(_ context.Context, c *Cart) error {
	m.carts[c.ID] = c
	return nil
}

func (m *memRepo) BindToUser(_ context.Context, cartID, userID string) error {
	c := m.carts[cartID]
	c.UserID = userID
	c.SessionID = ""
	return nil
}

func (m *memRepo) Delete(_ context.Context, cartID string) error {
	delete(m.carts, cartID)
	return nil
}

func (m *memRepo) Items(_ context.Context, cartID string) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memRepo) FindItem(_ context.Context, itemID string) (*Item, error) {
	it, ok := m.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	return it, nil
}

func (m *memRepo) FindItemByVariant(_ context.Context, cartID, variantID string) (*Item, error) {
	for _, it := range m.items {
		if it.CartID == cartID && it.VariantID == variantID {
			return it, nil
		}
	}
	return nil, ErrItemNotFound
}

func (m *memRepo) InsertItem(_ context.Context, it *Item) error {
	m.items[it.ID] = it
	return nil
}

func (m *memRepo) UpdateItemQuantity(_ context.Context, itemID string, quantity int) error {
	m.items[itemID].Quantity = quantity
	return nil
}

func (m *memRepo) ReassignItem(_ context.Context, itemID, cartID string) error {
	m.items[itemID].CartID = cartID
	return nil
}

func (m *memRepo) DeleteItem(_ context.Context, itemID string) error {
	delete(m.items, itemID)
	return nil
}

func (m *memRepo) DeleteItems(_ context.Context, cartID string) error {
	for id, it := range m.items {
		if it.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memRepo) SetCoupon(_ context.Context, cartID, couponID string, discount, finalTotal *decimal.Decimal) error {
	c := m.carts[cartID]
	c.CouponID = couponID
	c.CouponDiscount = discount
	c.FinalTotal = finalTotal
	return nil
}

func (m *memRepo) InTx(_ context.Context, fn func(Repository) error) error {
	return fn(m)
}

type mockCatalogRepo struct {
	byID map[string]*catalog.Variant
}

func (m *mockCatalogRepo) GetByID(_ context.Context, id string) (*catalog.Variant, error) {
	v, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return v, nil
}

func (m *mockCatalogRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Variant, error) {
	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.byID[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

type mockCouponRepo struct {
	byCode map[string]*coupon.Coupon
}

func (m *mockCouponRepo) FindActiveByCode(_ context.Context, code string, _ time.Time) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) ListActive(_ context.Context, _ time.Time) ([]coupon.Coupon, error) {
	return nil, nil
}

func (m *mockCouponRepo) CountUsages(_ context.Context, _ string) (int, error) { return 0, nil }

func (m *mockCouponRepo) CountUserUsages(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) InsertUsage(_ context.Context, _ *coupon.Usage) error { return nil }

// --- Fixtures ---

type fixture struct {
	repo     *memRepo
	variants *mockCatalogRepo
	coupons  *mockCouponRepo
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo: newMemRepo(),
		variants: &mockCatalogRepo{byID: map[string]*catalog.Variant{
			"var-1": {
				ID:        "var-1",
				SKU:       "NOVA-128",
				Title:     "Nova Phone 128GB",
				PriceSale: decimal.RequireFromString("600.00"),
				TaxRate:   decimal.RequireFromString("18"),
				IsActive:  true,
			},
			"var-2": {
				ID:        "var-2",
				SKU:       "BUDS-STD",
				Title:     "Pulse Buds",
				PriceSale: decimal.RequireFromString("199.00"),
				TaxRate:   decimal.RequireFromString("12"),
				IsActive:  true,
			},
			"var-off": {
				ID:        "var-off",
				SKU:       "LEGACY",
				Title:     "Legacy Charger",
				PriceSale: decimal.RequireFromString("99.00"),
				TaxRate:   decimal.RequireFromString("18"),
				IsActive:  false,
			},
		}},
		coupons: &mockCouponRepo{byCode: map[string]*coupon.Coupon{}},
	}
	f.svc = NewService(f.repo, f.variants, coupon.NewService(f.coupons))
	return f
}

func (f *fixture) itemByVariant(t *testing.T, cartID, variantID string) *Item {
	t.Helper()

	it, err := f.repo.FindItemByVariant(context.Background(), cartID, variantID)
	require.NoError(t, err)
	return it
}

// --- Tests ---

func TestIdentityValidate(t *testing.T) {
	assert.NoError(t, UserIdentity("user-1").Validate())
	assert.NoError(t, SessionIdentity("sess-1").Validate())
	assert.ErrorIs(t, Identity{}.Validate(), ErrIdentityInvalid)
	assert.ErrorIs(t, Identity{UserID: "u", SessionID: "s"}.Validate(), ErrIdentityInvalid)
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.GetOrCreate(ctx, UserIdentity("user-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, view.Cart.ID)
	assert.Equal(t, "user-1", view.Cart.UserID)
	assert.Empty(t, view.Items)
	assert.True(t, view.GrandTotal.IsZero())

	// Second call resolves the same cart instead of creating another.
	again, err := f.svc.GetOrCreate(ctx, UserIdentity("user-1"))
	require.NoError(t, err)
	assert.Equal(t, view.Cart.ID, again.Cart.ID)
	assert.Len(t, f.repo.carts, 1)
}

func TestAddItem_NewLineSnapshotsVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, SessionIdentity("sess-1"), "var-1", 2)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	it := view.Items[0]
	assert.Equal(t, 2, it.Quantity)
	assert.Equal(t, "600", it.PriceSnapshot.String())
	assert.Equal(t, "18", it.TaxRateSnapshot.String())
	assert.Equal(t, "1200", view.Subtotal.String())
	assert.Equal(t, "216", view.TaxTotal.String())
	assert.Equal(t, "1416", view.GrandTotal.String())
}

func TestAddItem_ExistingLineKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 1)
	require.NoError(t, err)

	// Catalog price changes after the first add.
	f.variants.byID["var-1"].PriceSale = decimal.RequireFromString("700.00")

	view, err = f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 2)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	it := view.Items[0]
	assert.Equal(t, 3, it.Quantity)
	assert.Equal(t, "600", it.PriceSnapshot.String())
	assert.Equal(t, "1800", view.Subtotal.String())
}

func TestAddItem_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 0)
	assert.ErrorIs(t, err, ErrQuantityInvalid)

	_, err = f.svc.AddItem(ctx, UserIdentity("user-1"), "no-such", 1)
	assert.ErrorIs(t, err, catalog.ErrVariantNotFound)

	_, err = f.svc.AddItem(ctx, UserIdentity("user-1"), "var-off", 1)
	assert.ErrorIs(t, err, ErrVariantInactive)

	_, err = f.svc.AddItem(ctx, Identity{}, "var-1", 1)
	assert.ErrorIs(t, err, ErrIdentityInvalid)
}

func TestUpdateItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 1)
	require.NoError(t, err)
	itemID := view.Items[0].ID

	view, err = f.svc.UpdateItem(ctx, UserIdentity("user-1"), itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Items[0].Quantity)

	_, err = f.svc.UpdateItem(ctx, UserIdentity("user-1"), itemID, 0)
	assert.ErrorIs(t, err, ErrQuantityInvalid)
}

func TestUpdateItem_OtherCartsItemNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 1)
	require.NoError(t, err)
	itemID := view.Items[0].ID

	_, err = f.svc.AddItem(ctx, UserIdentity("user-2"), "var-2", 1)
	require.NoError(t, err)

	// user-2 cannot see or touch user-1's item.
	_, err = f.svc.UpdateItem(ctx, UserIdentity("user-2"), itemID, 3)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.RemoveItem(ctx, UserIdentity("user-2"), itemID)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 1)
	require.NoError(t, err)

	view, err = f.svc.RemoveItem(ctx, UserIdentity("user-1"), view.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Subtotal.IsZero())
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, UserIdentity("user-1"), "var-2", 2)
	require.NoError(t, err)

	view, err := f.svc.Clear(ctx, UserIdentity("user-1"))
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	// The cart row survives clearing.
	assert.Len(t, f.repo.carts, 1)
}

func TestMerge_NoSessionCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Merge(ctx, "user-1", "sess-none")
	require.NoError(t, err)
	assert.Equal(t, "user-1", view.Cart.UserID)
	assert.Empty(t, view.Items)
}

func TestMerge_RebindsSessionCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sessView, err := f.svc.AddItem(ctx, SessionIdentity("sess-1"), "var-1", 2)
	require.NoError(t, err)

	view, err := f.svc.Merge(ctx, "user-1", "sess-1")
	require.NoError(t, err)

	// The session cart row is reused, not copied.
	assert.Equal(t, sessView.Cart.ID, view.Cart.ID)
	assert.Equal(t, "user-1", view.Cart.UserID)
	assert.Empty(t, view.Cart.SessionID)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
}

func TestMerge_SumsQuantitiesKeepingUserSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userView, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 3)
	require.NoError(t, err)

	// Session adds the same variant at a different price.
	f.variants.byID["var-1"].PriceSale = decimal.RequireFromString("650.00")
	_, err = f.svc.AddItem(ctx, SessionIdentity("sess-1"), "var-1", 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, SessionIdentity("sess-1"), "var-2", 1)
	require.NoError(t, err)

	view, err := f.svc.Merge(ctx, "user-1", "sess-1")
	require.NoError(t, err)

	assert.Equal(t, userView.Cart.ID, view.Cart.ID)
	require.Len(t, view.Items, 2)

	merged := f.itemByVariant(t, view.Cart.ID, "var-1")
	assert.Equal(t, 5, merged.Quantity)
	assert.Equal(t, "600", merged.PriceSnapshot.String())

	moved := f.itemByVariant(t, view.Cart.ID, "var-2")
	assert.Equal(t, 1, moved.Quantity)

	// The emptied session cart is gone.
	_, err = f.repo.FindBySession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Len(t, f.repo.carts, 1)
}

func TestMerge_RequiresBothIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Merge(ctx, "", "sess-1")
	assert.ErrorIs(t, err, ErrIdentityInvalid)

	_, err = f.svc.Merge(ctx, "user-1", "")
	assert.ErrorIs(t, err, ErrIdentityInvalid)
}

func TestApplyCoupon_CachesDiscountOnCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coupons.byCode["WELCOME10"] = &coupon.Coupon{
		ID:       "cpn-1",
		Code:     "WELCOME10",
		Type:     coupon.TypePercentage,
		Value:    decimal.NewFromInt(10),
		StartAt:  time.Now().Add(-time.Hour),
		EndAt:    time.Now().Add(time.Hour),
		IsActive: true,
	}

	view, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 2)
	require.NoError(t, err)

	app, err := f.svc.ApplyCoupon(ctx, UserIdentity("user-1"), "welcome10")
	require.NoError(t, err)

	assert.True(t, app.Success)
	assert.Equal(t, "120", app.DiscountAmount.String())

	c := f.repo.carts[view.Cart.ID]
	assert.Equal(t, "cpn-1", c.CouponID)
	require.NotNil(t, c.CouponDiscount)
	assert.Equal(t, "120", c.CouponDiscount.String())
	require.NotNil(t, c.FinalTotal)
	assert.Equal(t, "1080", c.FinalTotal.String())
}

func TestApplyCoupon_UnknownCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 2)
	require.NoError(t, err)

	_, err = f.svc.ApplyCoupon(ctx, UserIdentity("user-1"), "NOPE")
	assert.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestRemoveCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coupons.byCode["WELCOME10"] = &coupon.Coupon{
		ID:       "cpn-1",
		Code:     "WELCOME10",
		Type:     coupon.TypePercentage,
		Value:    decimal.NewFromInt(10),
		StartAt:  time.Now().Add(-time.Hour),
		EndAt:    time.Now().Add(time.Hour),
		IsActive: true,
	}

	view, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 2)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(ctx, UserIdentity("user-1"), "WELCOME10")
	require.NoError(t, err)

	cleared, err := f.svc.RemoveCoupon(ctx, UserIdentity("user-1"))
	require.NoError(t, err)

	assert.Empty(t, cleared.Cart.CouponID)
	assert.True(t, cleared.CouponDiscount.IsZero())
	assert.True(t, cleared.FinalTotal.Equal(cleared.GrandTotal))

	c := f.repo.carts[view.Cart.ID]
	assert.Empty(t, c.CouponID)
	assert.Nil(t, c.CouponDiscount)
}

func TestClearAllFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, UserIdentity("user-1"), "var-1", 1)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, SessionIdentity("sess-1"), "var-2", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearAllFor(ctx, "user-1", "sess-1"))

	assert.Empty(t, f.repo.items)
}

func TestItemTotals(t *testing.T) {
	it := Item{
		Quantity:        3,
		PriceSnapshot:   decimal.RequireFromString("100.00"),
		TaxRateSnapshot: decimal.RequireFromString("18"),
	}

	assert.Equal(t, "300", it.Subtotal().String())
	assert.Equal(t, "54", it.TaxAmount().String())
	assert.Equal(t, "354", it.Total().String())
}
