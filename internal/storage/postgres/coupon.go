package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajaySingh2615/devices/internal/domain/coupon"
)

const (
	findActiveCouponSQL = `SELECT id, code, name, description, type, value,
			min_order_amount, max_discount_amount, start_at, end_at,
			usage_limit, per_user_limit, usage_count, is_active
		FROM coupons
		WHERE UPPER(code) = UPPER($1) AND is_active = TRUE
			AND start_at <= $2 AND $2 < end_at`

	listActiveCouponsSQL = `SELECT id, code, name, description, type, value,
			min_order_amount, max_discount_amount, start_at, end_at,
			usage_limit, per_user_limit, usage_count, is_active
		FROM coupons
		WHERE is_active = TRUE AND start_at <= $1 AND $1 < end_at
		ORDER BY code`

	countCouponUsagesSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1`

	countUserCouponUsagesSQL = `SELECT count(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2`

	insertCouponUsageSQL = `INSERT INTO coupon_usages
			(id, coupon_id, user_id, order_id, discount_amount, order_amount)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`

	// The increment only succeeds while the limit is not exhausted, so two
	// concurrent redemptions of the last slot cannot both pass.
	consumeCouponSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActiveByCode resolves an active coupon whose validity window contains
// now. The SQL applies UPPER() on both sides, so lookup is case-insensitive.
// Returns coupon.ErrNotFound for unknown, inactive, or out-of-window codes.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string, now time.Time) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findActiveCouponSQL, code, now)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// ListActive returns all active coupons currently inside their validity
// window, ordered by code.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listActiveCouponsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing active coupons: %w", err)
	}
	return coupons, nil
}

// CountUsages returns the number of recorded redemptions for the coupon.
func (r *CouponRepository) CountUsages(ctx context.Context, couponID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCouponUsagesSQL, couponID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usages for coupon %q: %w", couponID, err)
	}
	return n, nil
}

// CountUserUsages returns the number of redemptions by a single user.
func (r *CouponRepository) CountUserUsages(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserCouponUsagesSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting user usages for coupon %q: %w", couponID, err)
	}
	return n, nil
}

// InsertUsage records a redemption fact. Facts are never updated.
func (r *CouponRepository) InsertUsage(ctx context.Context, u *coupon.Usage) error {
	_, err := r.pool.Exec(ctx, insertCouponUsageSQL,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.DiscountAmount, u.OrderAmount,
	)
	if err != nil {
		return fmt.Errorf("inserting usage for coupon %q: %w", u.CouponID, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		couponType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &couponType, &c.Value,
		&c.MinOrderAmount, &c.MaxDiscountAmount, &c.StartAt, &c.EndAt,
		&c.UsageLimit, &c.PerUserLimit, &c.UsageCount, &c.IsActive,
	)
	c.Type = coupon.Type(couponType)
	return c, err
}
