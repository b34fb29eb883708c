package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajaySingh2615/devices/internal/domain/address"
	"github.com/ajaySingh2615/devices/internal/domain/cart"
	"github.com/ajaySingh2615/devices/internal/domain/catalog"
	"github.com/ajaySingh2615/devices/internal/domain/checkout"
	"github.com/ajaySingh2615/devices/internal/payment"
)

// estimatedDeliveryOffset is added to the placement time to produce the
// estimated delivery date.
const estimatedDeliveryOffset = 3 * 24 * time.Hour

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID    string
	SessionID string
	AddressID string

	PaymentMethod PaymentMethod
	Proof         *payment.Proof

	OrderNotes           string
	DeliveryInstructions string
}

// Service encapsulates order placement and lifecycle business logic.
type Service struct {
	orders    Repository
	carts     *cart.Service
	checkout  *checkout.Service
	addresses address.Repository
	variants  catalog.Repository
	verifier  *payment.Verifier
	publisher Publisher
	currency  string
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
// publisher may be nil when no event broker is configured.
func NewService(
	orders Repository,
	carts *cart.Service,
	checkoutSvc *checkout.Service,
	addresses address.Repository,
	variants catalog.Repository,
	verifier *payment.Verifier,
	publisher Publisher,
	currency string,
) *Service {
	return &Service{
		orders:    orders,
		carts:     carts,
		checkout:  checkoutSvc,
		addresses: addresses,
		variants:  variants,
		verifier:  verifier,
		publisher: publisher,
		currency:  currency,
		now:       time.Now,
	}
}

// PlaceOrder converts the caller's cart into an order. It validates the cart
// and address, recomputes the checkout summary from current state, verifies
// the payment proof for gateway payments before any write happens, and then
// persists the order, the coupon redemption, and the cart clear in a single
// transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	ident := cart.UserIdentity(req.UserID)

	view, err := s.carts.GetOrCreate(ctx, ident)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(view.Items) == 0 {
		return nil, ErrCartEmpty
	}

	addr, err := s.addresses.GetOwned(ctx, req.UserID, req.AddressID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve address")
	}

	// Totals are recomputed from the live cart, never trusted from the
	// client. Coupon usage limits are enforced again inside the placement
	// transaction.
	summary, err := s.checkout.Summarize(ctx, ident)
	if err != nil {
		return nil, errors.Wrap(err, "summarize cart")
	}

	paymentStatus := PaymentPending
	status := StatusCreated
	var proof payment.Proof
	if req.PaymentMethod == PaymentMethodRazorpay {
		if req.Proof == nil {
			return nil, ErrProofRequired
		}
		proof = *req.Proof
		if err := s.verifier.Verify(proof); err != nil {
			return nil, err
		}
		paymentStatus = PaymentPaid
		status = StatusPaid
	}

	now := s.now()
	estimated := now.Add(estimatedDeliveryOffset)

	o := &Order{
		ID:                    uuid.New().String(),
		UserID:                req.UserID,
		Status:                status,
		Subtotal:              summary.Subtotal,
		DiscountTotal:         summary.Discount,
		TaxTotal:              summary.Tax,
		ShippingTotal:         summary.Shipping,
		GrandTotal:            summary.GrandTotal,
		Currency:              s.currency,
		PaymentMethod:         req.PaymentMethod,
		PaymentStatus:         paymentStatus,
		GatewayOrderID:        proof.GatewayOrderID,
		GatewayPaymentID:      proof.GatewayPaymentID,
		GatewaySignature:      proof.Signature,
		OrderNotes:            req.OrderNotes,
		DeliveryInstructions:  req.DeliveryInstructions,
		EstimatedDeliveryDate: &estimated,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	// Batch fetch all variants in a single query to freeze titles and SKUs
	// onto the order lines.
	ids := make([]string, len(summary.Items))
	for i, it := range summary.Items {
		ids[i] = it.VariantID
	}
	fetched, err := s.variants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	variantByID := make(map[string]catalog.Variant, len(fetched))
	for _, v := range fetched {
		variantByID[v.ID] = v
	}

	o.Items = make([]Item, 0, len(summary.Items))
	for i := range summary.Items {
		it := &summary.Items[i]
		v, ok := variantByID[it.VariantID]
		if !ok {
			return nil, errors.Wrapf(catalog.ErrVariantNotFound, "variant %s", it.VariantID)
		}
		o.Items = append(o.Items, Item{
			ID:         uuid.New().String(),
			OrderID:    o.ID,
			VariantID:  it.VariantID,
			Title:      v.Title,
			SKU:        v.SKU,
			Quantity:   it.Quantity,
			UnitPrice:  it.PriceSnapshot,
			TotalPrice: it.Subtotal(),
			TaxRate:    it.TaxRateSnapshot,
			TaxAmount:  it.TaxAmount().Round(2),
		})
	}

	o.Addresses = []Address{{
		ID:      uuid.New().String(),
		OrderID: o.ID,
		Type:    AddressShipping,
		Name:    addr.Name,
		Phone:   addr.Phone,
		Line1:   addr.Line1,
		Line2:   addr.Line2,
		City:    addr.City,
		State:   addr.State,
		Country: addr.Country,
		Pincode: addr.Pincode,
	}}

	placement := &Placement{
		Order:          o,
		ClearUserID:    req.UserID,
		ClearSessionID: req.SessionID,
	}
	if summary.AppliedCouponID != "" {
		o.CouponCode = summary.AppliedCoupon
		placement.Redemption = &CouponRedemption{
			CouponID:       summary.AppliedCouponID,
			UserID:         req.UserID,
			DiscountAmount: summary.Discount,
			OrderAmount:    summary.Subtotal,
		}
	}

	if err := s.orders.CreatePlacement(ctx, placement); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.OrderPlaced(ctx, o); err != nil {
			zctx.From(ctx).Warn("publish order placed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return o, nil
}

// GetOrder returns a single order owned by the user, with items and address.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*Order, error) {
	return s.orders.FindByUserAndID(ctx, userID, orderID)
}

// ListOrders returns the user's orders, newest first, without line items.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus advances an order through its lifecycle. Moving to DELIVERED
// records the actual delivery date.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target Status) (*Order, error) {
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if !from.CanTransition(target) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s to %s", from, target)
	}

	var delivered *time.Time
	if target == StatusDelivered {
		now := s.now()
		delivered = &now
	}
	if err := s.orders.UpdateStatus(ctx, orderID, target, delivered); err != nil {
		return nil, errors.Wrap(err, "update status")
	}

	o.Status = target
	if delivered != nil {
		o.ActualDeliveryDate = delivered
	}

	if s.publisher != nil {
		if err := s.publisher.OrderStatusChanged(ctx, o, from, target); err != nil {
			zctx.From(ctx).Warn("publish order status changed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return o, nil
}
