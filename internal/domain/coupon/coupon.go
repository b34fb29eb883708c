// Package coupon implements coupon validation and discount computation.
package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage discounts a percentage of the order amount.
	TypePercentage Type = "PERCENTAGE"
	// TypeFixed discounts a fixed monetary amount.
	TypeFixed Type = "FIXED"
)

// ParseType converts a request-supplied string into a Type, rejecting
// unknown values.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToUpper(s)) {
	case TypePercentage:
		return TypePercentage, nil
	case TypeFixed:
		return TypeFixed, nil
	default:
		return "", errors.Errorf("unknown coupon type: %q", s)
	}
}

var hundred = decimal.NewFromInt(100)

// Coupon is a discount rule with a validity window and usage limits.
// Codes are stored upper-cased and matched case-insensitively.
type Coupon struct {
	ID          string
	Code        string
	Name        string
	Description string
	Type        Type
	Value       decimal.Decimal

	// MinOrderAmount, when set, is the smallest order amount the coupon
	// applies to. MaxDiscountAmount, when set, caps the computed discount.
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal

	// The coupon is valid within [StartAt, EndAt).
	StartAt time.Time
	EndAt   time.Time

	// UsageLimit caps redemptions across all users; 0 means unlimited.
	// PerUserLimit caps redemptions per user.
	UsageLimit   int
	PerUserLimit int

	// UsageCount is the atomically maintained redemption counter backing
	// the UsageLimit check at consumption time.
	UsageCount int

	IsActive  bool
	CreatedAt time.Time
}

// IsValid reports whether the coupon is active, inside its validity window,
// and not globally exhausted. usageCount is the current global redemption
// count supplied by the caller.
func (c *Coupon) IsValid(now time.Time, usageCount int) bool {
	return c.IsActive &&
		!now.Before(c.StartAt) &&
		now.Before(c.EndAt) &&
		(c.UsageLimit == 0 || usageCount < c.UsageLimit)
}

// IsApplicable reports whether the coupon can be applied to an order of the
// given amount.
func (c *Coupon) IsApplicable(now time.Time, usageCount int, amount decimal.Decimal) bool {
	return c.IsValid(now, usageCount) &&
		(c.MinOrderAmount == nil || amount.GreaterThanOrEqual(*c.MinOrderAmount))
}

// CalculateDiscount computes the discount for the given order amount:
// percentage coupons take amount*value/100, fixed coupons take value. The
// result is capped at MaxDiscountAmount when set, never exceeds the order
// amount, and is rounded half-up to two decimal places.
func (c *Coupon) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		discount = amount.Mul(c.Value).Div(hundred)
	case TypeFixed:
		discount = c.Value
	default:
		return decimal.Zero
	}

	if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
		discount = *c.MaxDiscountAmount
	}
	if discount.GreaterThan(amount) {
		discount = amount
	}

	return discount.Round(2)
}

// Usage is an immutable record of one successful redemption. Rows are only
// ever inserted; counts derived from them feed the per-user limit check.
type Usage struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	OrderAmount    decimal.Decimal
	CreatedAt      time.Time
}

// Repository provides coupon lookup and usage accounting.
type Repository interface {
	// FindActiveByCode resolves an active coupon whose validity window
	// contains now. Returns ErrNotFound for unknown, inactive, or
	// out-of-window codes.
	FindActiveByCode(ctx context.Context, code string, now time.Time) (*Coupon, error)
	ListActive(ctx context.Context, now time.Time) ([]Coupon, error)
	CountUsages(ctx context.Context, couponID string) (int, error)
	CountUserUsages(ctx context.Context, couponID, userID string) (int, error)
	// InsertUsage records a redemption fact. Facts are never updated.
	InsertUsage(ctx context.Context, u *Usage) error
}
