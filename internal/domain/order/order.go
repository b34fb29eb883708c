// Package order implements order placement and the order status lifecycle.
// Orders freeze cart state at placement time: totals, currency, item prices,
// and the delivery address are copied, never referenced, so later catalog or
// address edits cannot alter history.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. The happy path runs
// CREATED → PAID → PACKED → SHIPPED → DELIVERED → COMPLETED; CANCELLED and
// RETURNED are reachable from any non-terminal state.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusPacked    Status = "PACKED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusReturned  Status = "RETURNED"
)

// next maps each status to its successor on the happy path.
var next = map[Status]Status{
	StatusCreated:   StatusPaid,
	StatusPaid:      StatusPacked,
	StatusPacked:    StatusShipped,
	StatusShipped:   StatusDelivered,
	StatusDelivered: StatusCompleted,
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusReturned
}

// CanTransition reports whether an order in status s may move to target.
func (s Status) CanTransition(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StatusCancelled || target == StatusReturned {
		return true
	}
	return next[s] == target
}

// ParseStatus converts a request-supplied string into a Status, rejecting
// unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(s)); st {
	case StatusCreated, StatusPaid, StatusPacked, StatusShipped,
		StatusDelivered, StatusCompleted, StatusCancelled, StatusReturned:
		return st, nil
	default:
		return "", errors.Errorf("unknown order status: %q", s)
	}
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery; the order is placed with payment
	// pending.
	PaymentMethodCOD PaymentMethod = "COD"
	// PaymentMethodRazorpay is the online gateway; placement requires a
	// verified payment proof.
	PaymentMethodRazorpay PaymentMethod = "RAZORPAY"
)

// ParsePaymentMethod converts a request-supplied string into a PaymentMethod,
// rejecting unknown values.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(s)); m {
	case PaymentMethodCOD, PaymentMethodRazorpay:
		return m, nil
	default:
		return "", errors.Errorf("unknown payment method: %q", s)
	}
}

// PaymentStatus tracks the payment side of the order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Order is an immutable financial record. Only status, payment status, and
// the delivery dates change after creation.
type Order struct {
	ID     string
	UserID string
	Status Status

	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	ShippingTotal decimal.Decimal
	GrandTotal    decimal.Decimal
	Currency      string

	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string

	CouponCode string

	OrderNotes           string
	DeliveryInstructions string

	EstimatedDeliveryDate *time.Time
	ActualDeliveryDate    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Items     []Item
	Addresses []Address
}

// Item is an order line with its own frozen snapshot of the variant at
// placement time.
type Item struct {
	ID        string
	OrderID   string
	VariantID string
	Title     string
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
	// TotalPrice = UnitPrice × Quantity.
	TotalPrice decimal.Decimal
	TaxRate    decimal.Decimal
	// TaxAmount = UnitPrice × (TaxRate / 100) × Quantity.
	TaxAmount decimal.Decimal
}

// AddressType distinguishes order address rows.
type AddressType string

// AddressShipping is the delivery address snapshot.
const AddressShipping AddressType = "SHIPPING"

// Address is a point-in-time copy of the user's address; it carries no
// reference back to the mutable address book row.
type Address struct {
	ID      string
	OrderID string
	Type    AddressType
	Name    string
	Phone   string
	Line1   string
	Line2   string
	City    string
	State   string
	Country string
	Pincode string
}

// CouponRedemption describes the coupon consumed by a placement. The
// usage-count increment is conditional on the coupon's limit and runs inside
// the placement transaction, so over-redemption under concurrency fails the
// whole placement instead of silently passing.
type CouponRedemption struct {
	CouponID       string
	UserID         string
	DiscountAmount decimal.Decimal
	OrderAmount    decimal.Decimal
}

// Placement bundles everything a successful placement persists atomically:
// the order with its items and address snapshot, the optional coupon
// redemption, and the cart identities to clear.
type Placement struct {
	Order      *Order
	Redemption *CouponRedemption

	// ClearUserID / ClearSessionID identify the carts emptied by the
	// placement. A still-existing session cart is cleared together with the
	// user cart so its items cannot be re-spent.
	ClearUserID    string
	ClearSessionID string
}

var (
	// ErrCartEmpty is returned when placement is attempted over a cart with
	// no items.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrNotFound is returned when a requested order does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("order not found")
	// ErrProofRequired is returned when the online gateway is selected but
	// no payment proof accompanies the request.
	ErrProofRequired = errors.New("payment details are required")
	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not allow.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// PlacementError wraps unexpected failures inside the placement transaction
// so the boundary can surface a stable code without leaking internals.
type PlacementError struct {
	Err error
}

func (e *PlacementError) Error() string { return "order placement failed: " + e.Err.Error() }

// Unwrap exposes the cause for errors.Is/As.
func (e *PlacementError) Unwrap() error { return e.Err }

// Repository defines persistence operations for orders.
type Repository interface {
	// CreatePlacement persists the order, its items and address, consumes
	// the coupon (conditional usage-count increment plus usage fact), and
	// clears the referenced carts, all in one transaction. It returns
	// coupon.ErrLimitReached when the conditional increment finds the limit
	// already exhausted; nothing is persisted in that case.
	CreatePlacement(ctx context.Context, p *Placement) error

	FindByID(ctx context.Context, orderID string) (*Order, error)
	FindByUserAndID(ctx context.Context, userID, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, status Status, actualDelivery *time.Time) error
}

// Publisher emits order lifecycle events to interested consumers. Publishing
// is best-effort: failures are logged, never surfaced to the caller.
type Publisher interface {
	OrderPlaced(ctx context.Context, o *Order) error
	OrderStatusChanged(ctx context.Context, o *Order, from, to Status) error
}
