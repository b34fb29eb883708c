package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ajaySingh2615/devices/internal/domain/address"
	"github.com/ajaySingh2615/devices/internal/domain/cart"
	"github.com/ajaySingh2615/devices/internal/domain/catalog"
	"github.com/ajaySingh2615/devices/internal/domain/coupon"
	"github.com/ajaySingh2615/devices/internal/domain/order"
	"github.com/ajaySingh2615/devices/internal/payment"
)

// errorResponse is the envelope returned for every failed request.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// respondError maps domain errors onto stable error codes and HTTP statuses.
// Unrecognized errors become a 500 with the detail logged, not exposed.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrIdentityInvalid):
		writeError(w, http.StatusBadRequest, "IDENTITY_REQUIRED", err.Error())
	case errors.Is(err, cart.ErrQuantityInvalid):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, catalog.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, "VARIANT_NOT_FOUND", err.Error())
	case errors.Is(err, cart.ErrVariantInactive):
		writeError(w, http.StatusUnprocessableEntity, "VARIANT_INACTIVE", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "CART_ITEM_NOT_FOUND", err.Error())
	case errors.Is(err, cart.ErrCartNotFound):
		writeError(w, http.StatusNotFound, "CART_NOT_FOUND", err.Error())
	case errors.Is(err, order.ErrCartEmpty):
		writeError(w, http.StatusUnprocessableEntity, "CART_EMPTY", err.Error())
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "COUPON_NOT_FOUND", err.Error())
	case errors.Is(err, coupon.ErrNotApplicable):
		writeError(w, http.StatusUnprocessableEntity, "COUPON_NOT_APPLICABLE", err.Error())
	case errors.Is(err, coupon.ErrLimitReached):
		writeError(w, http.StatusConflict, "COUPON_LIMIT_REACHED", err.Error())
	case errors.Is(err, address.ErrNotFound):
		writeError(w, http.StatusNotFound, "ADDRESS_NOT_FOUND", err.Error())
	case errors.Is(err, address.ErrForbidden):
		writeError(w, http.StatusForbidden, "ADDRESS_FORBIDDEN", err.Error())
	case errors.Is(err, order.ErrProofRequired), errors.Is(err, payment.ErrProofIncomplete):
		writeError(w, http.StatusUnprocessableEntity, "PAYMENT_PROOF_REQUIRED", err.Error())
	case errors.Is(err, payment.ErrVerificationFailed):
		writeError(w, http.StatusUnprocessableEntity, "PAYMENT_VERIFICATION_FAILED", err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error())
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "ORDER_INVALID_TRANSITION", err.Error())
	default:
		var minErr *coupon.MinOrderError
		if errors.As(err, &minErr) {
			writeError(w, http.StatusUnprocessableEntity, "COUPON_MIN_ORDER", minErr.Error())
			return
		}
		var userLimitErr *coupon.UserLimitError
		if errors.As(err, &userLimitErr) {
			writeError(w, http.StatusConflict, "COUPON_USER_LIMIT_REACHED", userLimitErr.Error())
			return
		}
		var placementErr *order.PlacementError
		if errors.As(err, &placementErr) {
			zctx.From(r.Context()).Error("order placement failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "ORDER_PLACEMENT_FAILED", "order could not be placed")
			return
		}

		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
