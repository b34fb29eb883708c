package handler

import (
	"net/http"

	"github.com/ajaySingh2615/devices/internal/domain/checkout"
)

type summaryView struct {
	Items         []cartItemView `json:"items"`
	Subtotal      string         `json:"subtotal"`
	Shipping      string         `json:"shipping"`
	Tax           string         `json:"tax"`
	AppliedCoupon string         `json:"appliedCoupon,omitempty"`
	Discount      string         `json:"discount"`
	GrandTotal    string         `json:"grandTotal"`
}

func toSummaryView(s *checkout.Summary) summaryView {
	items := make([]cartItemView, 0, len(s.Items))
	for i := range s.Items {
		it := &s.Items[i]
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
	return summaryView{
		Items:         items,
		Subtotal:      s.Subtotal.StringFixed(2),
		Shipping:      s.Shipping.StringFixed(2),
		Tax:           s.Tax.StringFixed(2),
		AppliedCoupon: s.AppliedCoupon,
		Discount:      s.Discount.StringFixed(2),
		GrandTotal:    s.GrandTotal.StringFixed(2),
	}
}

// CheckoutSummary quotes the current cart: totals, shipping estimate, and the
// applied coupon discount.
func (h *Handler) CheckoutSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.checkout.Summarize(r.Context(), identity(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(summary))
}
