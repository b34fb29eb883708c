package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
)

const (
	findCartByUserSQL = `SELECT c.id, c.user_id, c.session_id, c.coupon_id, cp.code,
			c.coupon_discount, c.final_total, c.created_at, c.updated_at
		FROM carts c LEFT JOIN coupons cp ON cp.id = c.coupon_id
		WHERE c.user_id = $1`

	findCartBySessionSQL = `SELECT c.id, c.user_id, c.session_id, c.coupon_id, cp.code,
			c.coupon_discount, c.final_total, c.created_at, c.updated_at
		FROM carts c LEFT JOIN coupons cp ON cp.id = c.coupon_id
		WHERE c.session_id = $1`

	insertCartSQL = `INSERT INTO carts (id, user_id, session_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))`

	bindCartToUserSQL = `UPDATE carts SET user_id = $2, session_id = NULL, updated_at = now()
		WHERE id = $1`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`

	cartItemsSQL = `SELECT id, cart_id, variant_id, quantity, price_snapshot, tax_rate_snapshot,
			created_at, updated_at
		FROM cart_items WHERE cart_id = $1 ORDER BY created_at`

	findCartItemSQL = `SELECT id, cart_id, variant_id, quantity, price_snapshot, tax_rate_snapshot,
			created_at, updated_at
		FROM cart_items WHERE id = $1`

	findCartItemByVariantSQL = `SELECT id, cart_id, variant_id, quantity, price_snapshot, tax_rate_snapshot,
			created_at, updated_at
		FROM cart_items WHERE cart_id = $1 AND variant_id = $2`

	insertCartItemSQL = `INSERT INTO cart_items
			(id, cart_id, variant_id, quantity, price_snapshot, tax_rate_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateCartItemQuantitySQL = `UPDATE cart_items SET quantity = $2, updated_at = now()
		WHERE id = $1`

	reassignCartItemSQL = `UPDATE cart_items SET cart_id = $2, updated_at = now()
		WHERE id = $1`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE id = $1`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	setCartCouponSQL = `UPDATE carts SET coupon_id = NULLIF($2, ''), coupon_discount = $3,
			final_total = $4, updated_at = now()
		WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. A repository
// returned by InTx shares one transaction across all its calls.
type CartRepository struct {
	pool *pgxpool.Pool
	db   querier
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool, db: pool}
}

// InTx runs fn against a transaction-bound copy of the repository, committing
// on nil and rolling back on error. Calling InTx on an already bound
// repository joins the existing transaction.
func (r *CartRepository) InTx(ctx context.Context, fn func(cart.Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&CartRepository{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// FindByUser resolves the user's cart. Returns cart.ErrCartNotFound when the
// user has none.
func (r *CartRepository) FindByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.findCart(ctx, findCartByUserSQL, userID)
}

// FindBySession resolves the guest cart for a session. Returns
// cart.ErrCartNotFound when the session has none.
func (r *CartRepository) FindBySession(ctx context.Context, sessionID string) (*cart.Cart, error) {
	return r.findCart(ctx, findCartBySessionSQL, sessionID)
}

func (r *CartRepository) findCart(ctx context.Context, sql, key string) (*cart.Cart, error) {
	rows, err := r.db.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("finding cart: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrCartNotFound
		}
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	return &c, nil
}

// Create persists a new cart row.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	_, err := r.db.Exec(ctx, insertCartSQL, c.ID, c.UserID, c.SessionID)
	if err != nil {
		return fmt.Errorf("creating cart %q: %w", c.ID, err)
	}
	return nil
}

// BindToUser re-keys a session cart to the given user id and clears its
// session id, reusing the cart row.
func (r *CartRepository) BindToUser(ctx context.Context, cartID, userID string) error {
	_, err := r.db.Exec(ctx, bindCartToUserSQL, cartID, userID)
	if err != nil {
		return fmt.Errorf("binding cart %q to user: %w", cartID, err)
	}
	return nil
}

// Delete removes a cart row; items cascade.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	_, err := r.db.Exec(ctx, deleteCartSQL, cartID)
	if err != nil {
		return fmt.Errorf("deleting cart %q: %w", cartID, err)
	}
	return nil
}

// Items lists the cart's items in insertion order.
func (r *CartRepository) Items(ctx context.Context, cartID string) ([]cart.Item, error) {
	rows, err := r.db.Query(ctx, cartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}

	items, err := pgx.CollectRows(rows, scanCartItem)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return items, nil
}

// FindItem fetches a single cart item by id.
func (r *CartRepository) FindItem(ctx context.Context, itemID string) (*cart.Item, error) {
	return r.findItem(ctx, findCartItemSQL, itemID)
}

// FindItemByVariant fetches the cart's line for a variant, if any.
func (r *CartRepository) FindItemByVariant(ctx context.Context, cartID, variantID string) (*cart.Item, error) {
	return r.findItem(ctx, findCartItemByVariantSQL, cartID, variantID)
}

func (r *CartRepository) findItem(ctx context.Context, sql string, args ...any) (*cart.Item, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding cart item: %w", err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanCartItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, fmt.Errorf("finding cart item: %w", err)
	}
	return &it, nil
}

// InsertItem persists a new cart line with its price and tax snapshots.
func (r *CartRepository) InsertItem(ctx context.Context, it *cart.Item) error {
	_, err := r.db.Exec(ctx, insertCartItemSQL,
		it.ID, it.CartID, it.VariantID, it.Quantity, it.PriceSnapshot, it.TaxRateSnapshot,
	)
	if err != nil {
		return fmt.Errorf("inserting cart item %q: %w", it.ID, err)
	}
	return nil
}

// UpdateItemQuantity sets an item's quantity, leaving its snapshots intact.
func (r *CartRepository) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error {
	_, err := r.db.Exec(ctx, updateCartItemQuantitySQL, itemID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart item %q: %w", itemID, err)
	}
	return nil
}

// ReassignItem moves an item onto another cart.
func (r *CartRepository) ReassignItem(ctx context.Context, itemID, cartID string) error {
	_, err := r.db.Exec(ctx, reassignCartItemSQL, itemID, cartID)
	if err != nil {
		return fmt.Errorf("reassigning cart item %q: %w", itemID, err)
	}
	return nil
}

// DeleteItem removes a single cart line.
func (r *CartRepository) DeleteItem(ctx context.Context, itemID string) error {
	_, err := r.db.Exec(ctx, deleteCartItemSQL, itemID)
	if err != nil {
		return fmt.Errorf("deleting cart item %q: %w", itemID, err)
	}
	return nil
}

// DeleteItems removes all lines from a cart.
func (r *CartRepository) DeleteItems(ctx context.Context, cartID string) error {
	_, err := r.db.Exec(ctx, deleteCartItemsSQL, cartID)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return nil
}

// SetCoupon caches the applied coupon and its derived discount and final
// total on the cart row; empty and nil values clear the cache.
func (r *CartRepository) SetCoupon(ctx context.Context, cartID, couponID string, discount, finalTotal *decimal.Decimal) error {
	_, err := r.db.Exec(ctx, setCartCouponSQL, cartID, couponID, discount, finalTotal)
	if err != nil {
		return fmt.Errorf("setting coupon on cart %q: %w", cartID, err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c          cart.Cart
		userID     *string
		sessionID  *string
		couponID   *string
		couponCode *string
	)
	err := row.Scan(
		&c.ID, &userID, &sessionID, &couponID, &couponCode,
		&c.CouponDiscount, &c.FinalTotal, &c.CreatedAt, &c.UpdatedAt,
	)
	if userID != nil {
		c.UserID = *userID
	}
	if sessionID != nil {
		c.SessionID = *sessionID
	}
	if couponID != nil {
		c.CouponID = *couponID
	}
	if couponCode != nil {
		c.CouponCode = *couponCode
	}
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(
		&it.ID, &it.CartID, &it.VariantID, &it.Quantity,
		&it.PriceSnapshot, &it.TaxRateSnapshot, &it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}
