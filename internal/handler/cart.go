package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
)

type cartItemView struct {
	ID            string `json:"id"`
	VariantID     string `json:"variantId"`
	Quantity      int    `json:"quantity"`
	PriceSnapshot string `json:"priceSnapshot"`
	TaxRate       string `json:"taxRate"`
	Subtotal      string `json:"subtotal"`
	TaxAmount     string `json:"taxAmount"`
	Total         string `json:"total"`
}

type cartView struct {
	ID             string         `json:"id"`
	Items          []cartItemView `json:"items"`
	TotalItems     int            `json:"totalItems"`
	Subtotal       string         `json:"subtotal"`
	TaxTotal       string         `json:"taxTotal"`
	GrandTotal     string         `json:"grandTotal"`
	CouponCode     string         `json:"couponCode,omitempty"`
	CouponDiscount string         `json:"couponDiscount,omitempty"`
	FinalTotal     string         `json:"finalTotal"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func toCartView(v *cart.View) cartView {
	items := make([]cartItemView, 0, len(v.Items))
	for i := range v.Items {
		it := &v.Items[i]
		items = append(items, cartItemView{
			ID:            it.ID,
			VariantID:     it.VariantID,
			Quantity:      it.Quantity,
			PriceSnapshot: it.PriceSnapshot.StringFixed(2),
			TaxRate:       it.TaxRateSnapshot.String(),
			Subtotal:      it.Subtotal().StringFixed(2),
			TaxAmount:     it.TaxAmount().StringFixed(2),
			Total:         it.Total().StringFixed(2),
		})
	}

	out := cartView{
		ID:         v.Cart.ID,
		Items:      items,
		TotalItems: v.TotalItems,
		Subtotal:   v.Subtotal.StringFixed(2),
		TaxTotal:   v.TaxTotal.StringFixed(2),
		GrandTotal: v.GrandTotal.StringFixed(2),
		CouponCode: v.Cart.CouponCode,
		FinalTotal: v.FinalTotal.StringFixed(2),
		UpdatedAt:  v.Cart.UpdatedAt,
	}
	if v.Cart.CouponID != "" {
		out.CouponDiscount = v.CouponDiscount.StringFixed(2)
	}
	return out
}

// GetCart returns the caller's cart, creating an empty one on first touch.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.GetOrCreate(r.Context(), identity(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

type addItemRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// AddCartItem adds a variant to the cart or increments an existing line.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}
	if req.VariantID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "variantId is required")
		return
	}

	view, err := h.carts.AddItem(r.Context(), identity(r), req.VariantID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets the quantity of a cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}

	itemID := chi.URLParam(r, "itemID")
	view, err := h.carts.UpdateItem(r.Context(), identity(r), itemID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

// RemoveCartItem deletes a cart line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	view, err := h.carts.RemoveItem(r.Context(), identity(r), itemID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

// ClearCart removes every line from the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Clear(r.Context(), identity(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

// MergeCart folds the session's guest cart into the user's cart after login.
// Both identity headers are required.
func (h *Handler) MergeCart(w http.ResponseWriter, r *http.Request) {
	uid := r.Header.Get(headerUserID)
	sid := r.Header.Get(headerSessionID)
	if uid == "" || sid == "" {
		writeError(w, http.StatusBadRequest, "IDENTITY_REQUIRED",
			"merge requires both X-User-ID and X-Session-ID")
		return
	}

	view, err := h.carts.Merge(r.Context(), uid, sid)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCartCoupon validates the coupon against the cart and caches the
// discount on it.
func (h *Handler) ApplyCartCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "code is required")
		return
	}

	app, err := h.carts.ApplyCoupon(r.Context(), identity(r), req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationView(app))
}

// RemoveCartCoupon drops the cached coupon from the cart.
func (h *Handler) RemoveCartCoupon(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.RemoveCoupon(r.Context(), identity(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(view))
}
