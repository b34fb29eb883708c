package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sentinel errors for coupon application.
var (
	// ErrNotFound covers unknown, inactive, and out-of-window codes alike so
	// callers cannot probe which codes exist.
	ErrNotFound = errors.New("invalid or expired coupon code")
	// ErrNotApplicable is returned when the coupon fails an applicability
	// check other than the minimum order amount.
	ErrNotApplicable = errors.New("coupon is not applicable for this order")
	// ErrLimitReached is returned when the coupon's global usage limit is
	// exhausted.
	ErrLimitReached = errors.New("coupon usage limit exceeded")
)

// MinOrderError indicates the order amount is below the coupon's minimum.
type MinOrderError struct {
	Min decimal.Decimal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("minimum order amount of %s required", e.Min.StringFixed(2))
}

// UserLimitError indicates the user has exhausted their personal allowance.
type UserLimitError struct {
	Limit int
}

func (e *UserLimitError) Error() string {
	return fmt.Sprintf("coupon can be used only %d time(s) per user", e.Limit)
}

// Application is the outcome of applying or previewing a coupon against an
// order amount. The preview path always returns one of these instead of an
// error so UIs can render inline feedback.
type Application struct {
	Success        bool
	Message        string
	Coupon         *Coupon
	DiscountAmount decimal.Decimal
	OriginalAmount decimal.Decimal
	FinalAmount    decimal.Decimal
}

// Service validates coupons and computes discounts. Usage-limit checks here
// are advisory read-only counts; the hard limit is enforced by the conditional
// usage-count update inside the order placement transaction.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Apply validates the code against its window, activation flag, and usage
// limits, then computes the discount for the given order amount. userID may
// be empty for anonymous previews, in which case the per-user limit is not
// checked.
func (s *Service) Apply(ctx context.Context, code string, orderAmount decimal.Decimal, userID string) (*Application, error) {
	now := s.now()

	c, err := s.repo.FindActiveByCode(ctx, normalizeCode(code), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	usageCount := 0
	if c.UsageLimit > 0 {
		usageCount, err = s.repo.CountUsages(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon usages")
		}
		if usageCount >= c.UsageLimit {
			return nil, ErrLimitReached
		}
	}

	if !c.IsApplicable(now, usageCount, orderAmount) {
		if c.MinOrderAmount != nil && orderAmount.LessThan(*c.MinOrderAmount) {
			return nil, &MinOrderError{Min: *c.MinOrderAmount}
		}
		return nil, ErrNotApplicable
	}

	if c.PerUserLimit > 0 && userID != "" {
		userUsage, err := s.repo.CountUserUsages(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user coupon usages")
		}
		if userUsage >= c.PerUserLimit {
			return nil, &UserLimitError{Limit: c.PerUserLimit}
		}
	}

	discount := c.CalculateDiscount(orderAmount)
	final := orderAmount.Sub(discount)

	zctx.From(ctx).Debug("Coupon applied",
		zap.String("code", c.Code),
		zap.String("discount", discount.String()),
	)

	return &Application{
		Success:        true,
		Message:        "Coupon applied successfully",
		Coupon:         c,
		DiscountAmount: discount,
		OriginalAmount: orderAmount,
		FinalAmount:    final,
	}, nil
}

// Validate runs the same checks as Apply but never fails with a coupon
// error: business rejections come back as an unsuccessful Application with a
// human-readable message. Only infrastructure errors are returned.
func (s *Service) Validate(ctx context.Context, code string, orderAmount decimal.Decimal, userID string) (*Application, error) {
	app, err := s.Apply(ctx, code, orderAmount, userID)
	if err == nil {
		return app, nil
	}

	if msg, ok := rejectionMessage(err); ok {
		return &Application{
			Success:        false,
			Message:        msg,
			OriginalAmount: orderAmount,
			FinalAmount:    orderAmount,
		}, nil
	}

	return nil, err
}

// RecordUsage inserts an immutable usage fact for a durably created order.
func (s *Service) RecordUsage(ctx context.Context, couponID, userID, orderID string, discount, orderAmount decimal.Decimal) error {
	u := &Usage{
		ID:             uuid.New().String(),
		CouponID:       couponID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discount,
		OrderAmount:    orderAmount,
	}
	if err := s.repo.InsertUsage(ctx, u); err != nil {
		return errors.Wrap(err, "insert coupon usage")
	}
	return nil
}

// ActiveCoupons lists coupons currently inside their validity window.
func (s *Service) ActiveCoupons(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.ListActive(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}
	return coupons, nil
}

// GetByCode resolves a single active coupon by code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.FindActiveByCode(ctx, normalizeCode(code), s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return c, nil
}

// rejectionMessage maps coupon business errors to user-facing messages.
// The second return is false for unexpected (infrastructure) errors.
func rejectionMessage(err error) (string, bool) {
	var (
		minErr  *MinOrderError
		userErr *UserLimitError
	)
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotApplicable),
		errors.Is(err, ErrLimitReached):
		return err.Error(), true
	case errors.As(err, &minErr):
		return minErr.Error(), true
	case errors.As(err, &userErr):
		return userErr.Error(), true
	default:
		return "", false
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
