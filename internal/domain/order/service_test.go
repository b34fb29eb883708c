package order

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaySingh2615/devices/internal/domain/address"
	"github.com/ajaySingh2615/devices/internal/domain/cart"
	"github.com/ajaySingh2615/devices/internal/domain/catalog"
	"github.com/ajaySingh2615/devices/internal/domain/checkout"
	"github.com/ajaySingh2615/devices/internal/domain/coupon"
	"github.com/ajaySingh2615/devices/internal/payment"
)

// --- Mock implementations ---

type memCartRepo struct {
	carts map[string]*cart.Cart
	items map[string]*cart.Item
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{
		carts: make(map[string]*cart.Cart),
		items: make(map[string]*cart.Item),
	}
}

func (m *memCartRepo) FindByUser(_ context.Context, userID string) (*cart.Cart, error) {
	for _, c := range m.carts {
		if c.UserID == userID {
			return c, nil
		}
	}
	return nil, cart.ErrCartNotFound
}

func (m *memCartRepo) FindBySession(_ context.Context, sessionID string) (*cart.Cart, error) {
	for _, c := range m.carts {
		if c.SessionID == sessionID {
			return c, nil
		}
	}
	return nil, cart.ErrCartNotFound
}

func (m *memCartRepo) Create(_ context.Context, c *cart.Cart) error {
	m.carts[c.ID] = c
	return nil
}

func (m *memCartRepo) BindToUser(_ context.Context, cartID, userID string) error {
	c := m.carts[cartID]
	c.UserID = userID
	c.SessionID = ""
	return nil
}

func (m *memCartRepo) Delete(_ context.Context, cartID string) error {
	delete(m.carts, cartID)
	return nil
}

func (m *memCartRepo) Items(_ context.Context, cartID string) ([]cart.Item, error) {
	var out []cart.Item
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memCartRepo) FindItem(_ context.Context, itemID string) (*cart.Item, error) {
	it, ok := m.items[itemID]
	if !ok {
		return nil, cart.ErrItemNotFound
	}
	return it, nil
}

func (m *memCartRepo) FindItemByVariant(_ context.Context, cartID, variantID string) (*cart.Item, error) {
	for _, it := range m.items {
		if it.CartID == cartID && it.VariantID == variantID {
			return it, nil
		}
	}
	return nil, cart.ErrItemNotFound
}

func (m *memCartRepo) InsertItem(_ context.Context, it *cart.Item) error {
	m.items[it.ID] = it
	return nil
}

func (m *memCartRepo) UpdateItemQuantity(_ context.Context, itemID string, quantity int) error {
	m.items[itemID].Quantity = quantity
	return nil
}

func (m *memCartRepo) ReassignItem(_ context.Context, itemID, cartID string) error {
	m.items[itemID].CartID = cartID
	return nil
}

func (m *memCartRepo) DeleteItem(_ context.Context, itemID string) error {
	delete(m.items, itemID)
	return nil
}

func (m *memCartRepo) DeleteItems(_ context.Context, cartID string) error {
	for id, it := range m.items {
		if it.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memCartRepo) SetCoupon(_ context.Context, cartID, couponID string, discount, finalTotal *decimal.Decimal) error {
	c := m.carts[cartID]
	c.CouponID = couponID
	c.CouponDiscount = discount
	c.FinalTotal = finalTotal
	return nil
}

func (m *memCartRepo) InTx(_ context.Context, fn func(cart.Repository) error) error {
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

type mockAddressRepo struct {
	byID map[string]*address.Address
}

func (m *mockAddressRepo) GetOwned(_ context.Context, userID, addressID string) (*address.Address, error) {
	a, ok := m.byID[addressID]
	if !ok {
		return nil, address.ErrNotFound
	}
	if a.UserID != userID {
		return nil, address.ErrForbidden
	}
	return a, nil
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

func (m *mockCouponRepo) CountUsages(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) CountUserUsages(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCouponRepo) InsertUsage(_ context.Context, _ *coupon.Usage) error {
	return nil
}

type mockOrderRepo struct {
	lastPlacement *Placement
	placementErr  error

	byID       map[string]*Order
	lastStatus Status
	lastActual *time.Time
}

func (m *mockOrderRepo) CreatePlacement(_ context.Context, p *Placement) error {
	if m.placementErr != nil {
		return m.placementErr
	}
	m.lastPlacement = p
	return nil
}

func (m *mockOrderRepo) FindByID(_ context.Context, orderID string) (*Order, error) {
	o, ok := m.byID[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) FindByUserAndID(_ context.Context, userID, orderID string) (*Order, error) {
	o, ok := m.byID[orderID]
	if !ok || o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ string, status Status, actual *time.Time) error {
	m.lastStatus = status
	m.lastActual = actual
	return nil
}

type mockPublisher struct {
	placed      []string
	transitions []string
}

func (m *mockPublisher) OrderPlaced(_ context.Context, o *Order) error {
	m.placed = append(m.placed, o.ID)
	return nil
}

func (m *mockPublisher) OrderStatusChanged(_ context.Context, o *Order, from, to Status) error {
	m.transitions = append(m.transitions, string(from)+">"+string(to))
	return nil
}

// --- Helpers ---

const testSecret = "test-gateway-secret"

type fixture struct {
	svc       *Service
	cartRepo  *memCartRepo
	orderRepo *mockOrderRepo
	publisher *mockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	variants := &mockCatalogRepo{byID: map[string]*catalog.Variant{
		"v1": {
			ID:        "v1",
			ProductID: "p1",
			SKU:       "PHONE-BLK-128",
			Title:     "Phone 128GB Black",
			PriceSale: decimal.RequireFromString("600.00"),
			TaxRate:   decimal.RequireFromString("18"),
			IsActive:  true,
		},
		"v2": {
			ID:        "v2",
			ProductID: "p2",
			SKU:       "CASE-CLR",
			Title:     "Clear Case",
			PriceSale: decimal.RequireFromString("199.00"),
			TaxRate:   decimal.RequireFromString("12"),
			IsActive:  true,
		},
	}}
	addresses := &mockAddressRepo{byID: map[string]*address.Address{
		"addr-1": {
			ID:      "addr-1",
			UserID:  "user-1",
			Name:    "Test User",
			Phone:   "9999999999",
			Line1:   "1 Test Street",
			City:    "Pune",
			State:   "MH",
			Country: "IN",
			Pincode: "411001",
		},
		"addr-2": {
			ID:      "addr-2",
			UserID:  "user-2",
			Name:    "Other User",
			Phone:   "8888888888",
			Line1:   "2 Test Street",
			City:    "Pune",
			State:   "MH",
			Country: "IN",
			Pincode: "411002",
		},
	}}

	cartRepo := newMemCartRepo()
	coupons := coupon.NewService(&mockCouponRepo{byCode: map[string]*coupon.Coupon{}})
	carts := cart.NewService(cartRepo, variants, coupons)
	checkoutSvc := checkout.NewService(carts, checkout.Config{
		FlatRate:      decimal.NewFromInt(49),
		FreeThreshold: decimal.NewFromInt(999),
	})

	orderRepo := &mockOrderRepo{byID: make(map[string]*Order)}
	publisher := &mockPublisher{}
	svc := NewService(
		orderRepo, carts, checkoutSvc, addresses, variants,
		payment.NewVerifier([]byte(testSecret)),
		publisher, "INR",
	)

	return &fixture{
		svc:       svc,
		cartRepo:  cartRepo,
		orderRepo: orderRepo,
		publisher: publisher,
	}
}

func (f *fixture) addCartItem(variantID string, qty int, price, taxRate string) {
	c, err := f.cartRepo.FindByUser(context.Background(), "user-1")
	if errors.Is(err, cart.ErrCartNotFound) {
		c = &cart.Cart{ID: uuid.New().String(), UserID: "user-1"}
		_ = f.cartRepo.Create(context.Background(), c)
	}
	_ = f.cartRepo.InsertItem(context.Background(), &cart.Item{
		ID:              uuid.New().String(),
		CartID:          c.ID,
		VariantID:       variantID,
		Quantity:        qty,
		PriceSnapshot:   decimal.RequireFromString(price),
		TaxRateSnapshot: decimal.RequireFromString(taxRate),
	})
}

func signProof(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Tests ---

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodCOD,
	})
	require.ErrorIs(t, err, ErrCartEmpty)
	assert.Nil(t, f.orderRepo.lastPlacement)
}

func TestPlaceOrder_COD(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 2, "600.00", "18")

	o, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		SessionID:     "sess-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodCOD,
		OrderNotes:    "leave at door",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "INR", o.Currency)
	assert.True(t, decimal.RequireFromString("1200.00").Equal(o.Subtotal))
	// Subtotal over the free threshold, so no shipping charge.
	assert.True(t, o.ShippingTotal.IsZero())
	assert.True(t, decimal.RequireFromString("216.00").Equal(o.TaxTotal))
	assert.True(t, decimal.RequireFromString("1416.00").Equal(o.GrandTotal))
	require.NotNil(t, o.EstimatedDeliveryDate)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Phone 128GB Black", o.Items[0].Title)
	assert.Equal(t, "PHONE-BLK-128", o.Items[0].SKU)
	assert.True(t, decimal.RequireFromString("1200.00").Equal(o.Items[0].TotalPrice))

	require.Len(t, o.Addresses, 1)
	assert.Equal(t, AddressShipping, o.Addresses[0].Type)
	assert.Equal(t, "Pune", o.Addresses[0].City)

	require.NotNil(t, f.orderRepo.lastPlacement)
	assert.Equal(t, "user-1", f.orderRepo.lastPlacement.ClearUserID)
	assert.Equal(t, "sess-1", f.orderRepo.lastPlacement.ClearSessionID)
	assert.Nil(t, f.orderRepo.lastPlacement.Redemption)

	assert.Equal(t, []string{o.ID}, f.publisher.placed)
}

func TestPlaceOrder_ShippingBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v2", 1, "199.00", "12")

	o, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodCOD,
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(49).Equal(o.ShippingTotal))
}

func TestPlaceOrder_AddressNotOwned(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 1, "600.00", "18")

	// addr-2 exists but belongs to user-2.
	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-2",
		PaymentMethod: PaymentMethodCOD,
	})
	require.ErrorIs(t, err, address.ErrForbidden)
	assert.Nil(t, f.orderRepo.lastPlacement)
}

func TestPlaceOrder_GatewayRequiresProof(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 1, "600.00", "18")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodRazorpay,
	})
	require.ErrorIs(t, err, ErrProofRequired)
	assert.Nil(t, f.orderRepo.lastPlacement)
}

func TestPlaceOrder_GatewayTamperedSignature(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 1, "600.00", "18")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodRazorpay,
		Proof: &payment.Proof{
			GatewayOrderID:   "rzp_order_1",
			GatewayPaymentID: "rzp_pay_1",
			Signature:        signProof("rzp_order_1", "tampered"),
		},
	})
	require.ErrorIs(t, err, payment.ErrVerificationFailed)

	// Verification happens before any write, so nothing was persisted.
	assert.Nil(t, f.orderRepo.lastPlacement)
	assert.Empty(t, f.publisher.placed)
}

func TestPlaceOrder_GatewayVerified(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 1, "600.00", "18")

	o, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodRazorpay,
		Proof: &payment.Proof{
			GatewayOrderID:   "rzp_order_1",
			GatewayPaymentID: "rzp_pay_1",
			Signature:        signProof("rzp_order_1", "rzp_pay_1"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "rzp_order_1", o.GatewayOrderID)
	assert.Equal(t, "rzp_pay_1", o.GatewayPaymentID)
}

func TestPlaceOrder_CouponRedemption(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 2, "600.00", "18")

	// Coupon applied earlier; the cart carries the cached discount.
	c, err := f.cartRepo.FindByUser(context.Background(), "user-1")
	require.NoError(t, err)
	discount := decimal.RequireFromString("120.00")
	final := decimal.RequireFromString("1080.00")
	require.NoError(t, f.cartRepo.SetCoupon(context.Background(), c.ID, "coupon-1", &discount, &final))
	c.CouponCode = "WELCOME10"

	o, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodCOD,
	})
	require.NoError(t, err)

	assert.Equal(t, "WELCOME10", o.CouponCode)
	assert.True(t, discount.Equal(o.DiscountTotal))
	// 1200 + 216 tax - 120 discount, free shipping.
	assert.True(t, decimal.RequireFromString("1296.00").Equal(o.GrandTotal))

	red := f.orderRepo.lastPlacement.Redemption
	require.NotNil(t, red)
	assert.Equal(t, "coupon-1", red.CouponID)
	assert.Equal(t, "user-1", red.UserID)
	assert.True(t, discount.Equal(red.DiscountAmount))
}

func TestPlaceOrder_CouponLimitReachedInTx(t *testing.T) {
	f := newFixture(t)
	f.addCartItem("v1", 1, "600.00", "18")
	f.orderRepo.placementErr = coupon.ErrLimitReached

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "user-1",
		AddressID:     "addr-1",
		PaymentMethod: PaymentMethodCOD,
	})
	require.ErrorIs(t, err, coupon.ErrLimitReached)
	assert.Empty(t, f.publisher.placed)
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.orderRepo.byID["o1"] = &Order{ID: "o1", UserID: "user-1", Status: StatusShipped}

	o, err := f.svc.UpdateStatus(context.Background(), "o1", StatusDelivered)
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, o.Status)
	require.NotNil(t, o.ActualDeliveryDate)
	assert.Equal(t, StatusDelivered, f.orderRepo.lastStatus)
	require.NotNil(t, f.orderRepo.lastActual)
	assert.Equal(t, []string{"SHIPPED>DELIVERED"}, f.publisher.transitions)
}

func TestUpdateStatus_Cancel(t *testing.T) {
	f := newFixture(t)
	f.orderRepo.byID["o1"] = &Order{ID: "o1", UserID: "user-1", Status: StatusPacked}

	o, err := f.svc.UpdateStatus(context.Background(), "o1", StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Nil(t, o.ActualDeliveryDate)
}

func TestUpdateStatus_Invalid(t *testing.T) {
	f := newFixture(t)
	f.orderRepo.byID["o1"] = &Order{ID: "o1", UserID: "user-1", Status: StatusCreated}

	_, err := f.svc.UpdateStatus(context.Background(), "o1", StatusDelivered)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_Terminal(t *testing.T) {
	f := newFixture(t)
	f.orderRepo.byID["o1"] = &Order{ID: "o1", UserID: "user-1", Status: StatusCancelled}

	_, err := f.svc.UpdateStatus(context.Background(), "o1", StatusPaid)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusCreated, StatusPaid, true},
		{StatusPaid, StatusPacked, true},
		{StatusPacked, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusCompleted, true},
		{StatusCreated, StatusShipped, false},
		{StatusPaid, StatusDelivered, false},
		{StatusShipped, StatusPaid, false},
		{StatusCreated, StatusCancelled, true},
		{StatusDelivered, StatusReturned, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
		{StatusReturned, StatusReturned, false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.allowed, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestGetOrder_Ownership(t *testing.T) {
	f := newFixture(t)
	f.orderRepo.byID["o1"] = &Order{ID: "o1", UserID: "user-1", Status: StatusCreated}

	_, err := f.svc.GetOrder(context.Background(), "user-2", "o1")
	require.ErrorIs(t, err, ErrNotFound)

	o, err := f.svc.GetOrder(context.Background(), "user-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}
