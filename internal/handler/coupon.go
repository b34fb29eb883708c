package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajaySingh2615/devices/internal/domain/coupon"
)

type couponView struct {
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Type              string    `json:"type"`
	Value             string    `json:"value"`
	MinOrderAmount    string    `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount string    `json:"maxDiscountAmount,omitempty"`
	EndAt             time.Time `json:"endAt"`
}

func toCouponView(c *coupon.Coupon) couponView {
	v := couponView{
		Code:        c.Code,
		Name:        c.Name,
		Description: c.Description,
		Type:        string(c.Type),
		Value:       c.Value.String(),
		EndAt:       c.EndAt,
	}
	if c.MinOrderAmount != nil {
		v.MinOrderAmount = c.MinOrderAmount.StringFixed(2)
	}
	if c.MaxDiscountAmount != nil {
		v.MaxDiscountAmount = c.MaxDiscountAmount.StringFixed(2)
	}
	return v
}

type applicationView struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message,omitempty"`
	Coupon         *couponView `json:"coupon,omitempty"`
	DiscountAmount string      `json:"discountAmount"`
	OriginalAmount string      `json:"originalAmount"`
	FinalAmount    string      `json:"finalAmount"`
}

func toApplicationView(app *coupon.Application) applicationView {
	v := applicationView{
		Success:        app.Success,
		Message:        app.Message,
		DiscountAmount: app.DiscountAmount.StringFixed(2),
		OriginalAmount: app.OriginalAmount.StringFixed(2),
		FinalAmount:    app.FinalAmount.StringFixed(2),
	}
	if app.Coupon != nil {
		cv := toCouponView(app.Coupon)
		v.Coupon = &cv
	}
	return v
}

// ListCoupons returns the publicly visible active coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ActiveCoupons(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]couponView, 0, len(coupons))
	for i := range coupons {
		views = append(views, toCouponView(&coupons[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

type validateCouponRequest struct {
	Code        string `json:"code"`
	OrderAmount string `json:"orderAmount"`
}

// ValidateCoupon previews a coupon against an order amount without touching
// any cart. Rejections come back as success=false, never as an error status.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "code is required")
		return
	}
	amount, err := decimal.NewFromString(req.OrderAmount)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "orderAmount must be a non-negative decimal")
		return
	}

	app, err := h.coupons.Validate(r.Context(), req.Code, amount, userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationView(app))
}
