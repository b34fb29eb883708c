// Package handler exposes the shop core over HTTP. Request identity arrives
// in headers, bodies are JSON, and all monetary amounts are serialized as
// fixed two-decimal strings.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
	"github.com/ajaySingh2615/devices/internal/domain/checkout"
	"github.com/ajaySingh2615/devices/internal/domain/coupon"
	"github.com/ajaySingh2615/devices/internal/domain/order"
)

// Handler wires the domain services to their HTTP routes.
type Handler struct {
	carts    *cart.Service
	checkout *checkout.Service
	coupons  *coupon.Service
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	carts *cart.Service,
	checkoutSvc *checkout.Service,
	coupons *coupon.Service,
	orders *order.Service,
) *Handler {
	return &Handler{
		carts:    carts,
		checkout: checkoutSvc,
		coupons:  coupons,
		orders:   orders,
	}
}

// Routes registers all API routes on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddCartItem)
			r.Patch("/items/{itemID}", h.UpdateCartItem)
			r.Delete("/items/{itemID}", h.RemoveCartItem)
			r.Delete("/clear", h.ClearCart)
			r.Post("/merge", h.MergeCart)
			r.Post("/coupon", h.ApplyCartCoupon)
			r.Delete("/coupon", h.RemoveCartCoupon)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", h.ListCoupons)
			r.Post("/validate", h.ValidateCoupon)
		})

		r.Get("/checkout/summary", h.CheckoutSummary)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Get("/", h.ListOrders)
			r.Get("/{orderID}", h.GetOrder)
			r.Patch("/{orderID}/status", h.UpdateOrderStatus)
		})
	})

	return r
}
