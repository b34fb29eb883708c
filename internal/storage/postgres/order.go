package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajaySingh2615/devices/internal/domain/coupon"
	"github.com/ajaySingh2615/devices/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
			(id, user_id, status, subtotal, discount_total, tax_total, shipping_total,
			grand_total, currency, payment_method, payment_status,
			gateway_order_id, gateway_payment_id, gateway_signature, coupon_code,
			order_notes, delivery_instructions, estimated_delivery_date,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''),
			$16, $17, $18, $19, $20)`

	insertOrderItemSQL = `INSERT INTO order_items
			(id, order_id, variant_id, title, sku, quantity, unit_price,
			total_price, tax_rate, tax_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertOrderAddressSQL = `INSERT INTO order_addresses
			(id, order_id, type, name, phone, line1, line2, city, state, country, pincode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	clearCartByUserSQL = `DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`

	clearCartBySessionSQL = `DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE session_id = $1)`

	resetCartCouponByUserSQL = `UPDATE carts SET coupon_id = NULL, coupon_discount = NULL,
			final_total = NULL, updated_at = now()
		WHERE user_id = $1`

	getOrderSQL = `SELECT id, user_id, status, subtotal, discount_total, tax_total,
			shipping_total, grand_total, currency, payment_method, payment_status,
			gateway_order_id, gateway_payment_id, gateway_signature, coupon_code,
			order_notes, delivery_instructions, estimated_delivery_date,
			actual_delivery_date, created_at, updated_at
		FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, status, subtotal, discount_total, tax_total,
			shipping_total, grand_total, currency, payment_method, payment_status,
			gateway_order_id, gateway_payment_id, gateway_signature, coupon_code,
			order_notes, delivery_instructions, estimated_delivery_date,
			actual_delivery_date, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	orderItemsSQL = `SELECT id, order_id, variant_id, title, sku, quantity, unit_price,
			total_price, tax_rate, tax_amount
		FROM order_items WHERE order_id = $1 ORDER BY created_at`

	orderAddressesSQL = `SELECT id, order_id, type, name, phone, line1, line2, city,
			state, country, pincode
		FROM order_addresses WHERE order_id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2,
			actual_delivery_date = COALESCE($3, actual_delivery_date),
			updated_at = now()
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreatePlacement persists the order, its items and address snapshot,
// consumes the coupon, and clears the placing user's carts in a single
// transaction. When the coupon's usage limit turns out to be exhausted the
// whole transaction rolls back and coupon.ErrLimitReached is returned.
func (r *OrderRepository) CreatePlacement(ctx context.Context, p *order.Placement) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := p.Order
	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.UserID, string(o.Status),
		o.Subtotal, o.DiscountTotal, o.TaxTotal, o.ShippingTotal, o.GrandTotal,
		o.Currency, string(o.PaymentMethod), string(o.PaymentStatus),
		o.GatewayOrderID, o.GatewayPaymentID, o.GatewaySignature, o.CouponCode,
		o.OrderNotes, o.DeliveryInstructions, o.EstimatedDeliveryDate,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return &order.PlacementError{Err: fmt.Errorf("inserting order %q: %w", o.ID, err)}
	}

	for i := range o.Items {
		it := &o.Items[i]
		_, err = tx.Exec(ctx, insertOrderItemSQL,
			it.ID, it.OrderID, it.VariantID, it.Title, it.SKU, it.Quantity,
			it.UnitPrice, it.TotalPrice, it.TaxRate, it.TaxAmount,
		)
		if err != nil {
			return &order.PlacementError{Err: fmt.Errorf("inserting order item %q: %w", it.ID, err)}
		}
	}

	for i := range o.Addresses {
		a := &o.Addresses[i]
		_, err = tx.Exec(ctx, insertOrderAddressSQL,
			a.ID, a.OrderID, string(a.Type), a.Name, a.Phone,
			a.Line1, a.Line2, a.City, a.State, a.Country, a.Pincode,
		)
		if err != nil {
			return &order.PlacementError{Err: fmt.Errorf("inserting order address %q: %w", a.ID, err)}
		}
	}

	if red := p.Redemption; red != nil {
		tag, err := tx.Exec(ctx, consumeCouponSQL, red.CouponID)
		if err != nil {
			return &order.PlacementError{Err: fmt.Errorf("consuming coupon %q: %w", red.CouponID, err)}
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrLimitReached
		}

		_, err = tx.Exec(ctx, insertCouponUsageSQL,
			uuid.New().String(), red.CouponID, red.UserID, o.ID,
			red.DiscountAmount, red.OrderAmount,
		)
		if err != nil {
			return &order.PlacementError{Err: fmt.Errorf("recording coupon usage: %w", err)}
		}
	}

	if p.ClearUserID != "" {
		if _, err = tx.Exec(ctx, clearCartByUserSQL, p.ClearUserID); err != nil {
			return &order.PlacementError{Err: fmt.Errorf("clearing user cart: %w", err)}
		}
		if _, err = tx.Exec(ctx, resetCartCouponByUserSQL, p.ClearUserID); err != nil {
			return &order.PlacementError{Err: fmt.Errorf("resetting cart coupon: %w", err)}
		}
	}
	if p.ClearSessionID != "" {
		if _, err = tx.Exec(ctx, clearCartBySessionSQL, p.ClearSessionID); err != nil {
			return &order.PlacementError{Err: fmt.Errorf("clearing session cart: %w", err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &order.PlacementError{Err: fmt.Errorf("committing placement: %w", err)}
	}
	return nil
}

// FindByID fetches a single order with its items and address snapshot.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	if err := r.loadDetails(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// FindByUserAndID fetches an order only when it belongs to the given user.
func (r *OrderRepository) FindByUserAndID(ctx context.Context, userID, orderID string) (*order.Order, error) {
	o, err := r.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first, without line items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus sets the order's status and, when provided, its actual
// delivery date.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status, actualDelivery *time.Time) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, orderID, string(status), actualDelivery)
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) loadDetails(ctx context.Context, o *order.Order) error {
	itemRows, err := r.pool.Query(ctx, orderItemsSQL, o.ID)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return fmt.Errorf("listing order items: %w", err)
	}

	addrRows, err := r.pool.Query(ctx, orderAddressesSQL, o.ID)
	if err != nil {
		return fmt.Errorf("listing order addresses: %w", err)
	}
	o.Addresses, err = pgx.CollectRows(addrRows, scanOrderAddress)
	if err != nil {
		return fmt.Errorf("listing order addresses: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                order.Order
		status           string
		method           string
		payStatus        string
		gatewayOrderID   *string
		gatewayPaymentID *string
		gatewaySig       *string
		couponCode       *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status,
		&o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.ShippingTotal, &o.GrandTotal,
		&o.Currency, &method, &payStatus,
		&gatewayOrderID, &gatewayPaymentID, &gatewaySig, &couponCode,
		&o.OrderNotes, &o.DeliveryInstructions,
		&o.EstimatedDeliveryDate, &o.ActualDeliveryDate,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	if gatewayOrderID != nil {
		o.GatewayOrderID = *gatewayOrderID
	}
	if gatewayPaymentID != nil {
		o.GatewayPaymentID = *gatewayPaymentID
	}
	if gatewaySig != nil {
		o.GatewaySignature = *gatewaySig
	}
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.VariantID, &it.Title, &it.SKU, &it.Quantity,
		&it.UnitPrice, &it.TotalPrice, &it.TaxRate, &it.TaxAmount,
	)
	return it, err
}

func scanOrderAddress(row pgx.CollectableRow) (order.Address, error) {
	var (
		a        order.Address
		addrType string
	)
	err := row.Scan(
		&a.ID, &a.OrderID, &addrType, &a.Name, &a.Phone,
		&a.Line1, &a.Line2, &a.City, &a.State, &a.Country, &a.Pincode,
	)
	a.Type = order.AddressType(addrType)
	return a, err
}
