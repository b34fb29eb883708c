package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ajaySingh2615/devices/internal/domain/order"
	"github.com/ajaySingh2615/devices/internal/payment"
)

type orderItemView struct {
	VariantID  string `json:"variantId"`
	Title      string `json:"title"`
	SKU        string `json:"sku"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	TotalPrice string `json:"totalPrice"`
	TaxRate    string `json:"taxRate"`
	TaxAmount  string `json:"taxAmount"`
}

type orderAddressView struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Pincode string `json:"pincode"`
}

type orderView struct {
	ID                    string             `json:"id"`
	Status                string             `json:"status"`
	Subtotal              string             `json:"subtotal"`
	DiscountTotal         string             `json:"discountTotal"`
	TaxTotal              string             `json:"taxTotal"`
	ShippingTotal         string             `json:"shippingTotal"`
	GrandTotal            string             `json:"grandTotal"`
	Currency              string             `json:"currency"`
	PaymentMethod         string             `json:"paymentMethod"`
	PaymentStatus         string             `json:"paymentStatus"`
	CouponCode            string             `json:"couponCode,omitempty"`
	OrderNotes            string             `json:"orderNotes,omitempty"`
	DeliveryInstructions  string             `json:"deliveryInstructions,omitempty"`
	EstimatedDeliveryDate *time.Time         `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time         `json:"actualDeliveryDate,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
	Items                 []orderItemView    `json:"items,omitempty"`
	Addresses             []orderAddressView `json:"addresses,omitempty"`
}

func toOrderView(o *order.Order) orderView {
	v := orderView{
		ID:                    o.ID,
		Status:                string(o.Status),
		Subtotal:              o.Subtotal.StringFixed(2),
		DiscountTotal:         o.DiscountTotal.StringFixed(2),
		TaxTotal:              o.TaxTotal.StringFixed(2),
		ShippingTotal:         o.ShippingTotal.StringFixed(2),
		GrandTotal:            o.GrandTotal.StringFixed(2),
		Currency:              o.Currency,
		PaymentMethod:         string(o.PaymentMethod),
		PaymentStatus:         string(o.PaymentStatus),
		CouponCode:            o.CouponCode,
		OrderNotes:            o.OrderNotes,
		DeliveryInstructions:  o.DeliveryInstructions,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		ActualDeliveryDate:    o.ActualDeliveryDate,
		CreatedAt:             o.CreatedAt,
	}
	for i := range o.Items {
		it := &o.Items[i]
		v.Items = append(v.Items, orderItemView{
			VariantID:  it.VariantID,
			Title:      it.Title,
			SKU:        it.SKU,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice.StringFixed(2),
			TotalPrice: it.TotalPrice.StringFixed(2),
			TaxRate:    it.TaxRate.String(),
			TaxAmount:  it.TaxAmount.StringFixed(2),
		})
	}
	for i := range o.Addresses {
		a := &o.Addresses[i]
		v.Addresses = append(v.Addresses, orderAddressView{
			Type:    string(a.Type),
			Name:    a.Name,
			Phone:   a.Phone,
			Line1:   a.Line1,
			Line2:   a.Line2,
			City:    a.City,
			State:   a.State,
			Country: a.Country,
			Pincode: a.Pincode,
		})
	}
	return v
}

type placeOrderRequest struct {
	AddressID            string `json:"addressId"`
	PaymentMethod        string `json:"paymentMethod"`
	GatewayOrderID       string `json:"gatewayOrderId"`
	GatewayPaymentID     string `json:"gatewayPaymentId"`
	GatewaySignature     string `json:"gatewaySignature"`
	OrderNotes           string `json:"orderNotes"`
	DeliveryInstructions string `json:"deliveryInstructions"`
}

// PlaceOrder converts the caller's cart into an order. Placing requires an
// authenticated user.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "X-User-ID is required")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}
	if req.AddressID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "addressId is required")
		return
	}
	method, err := order.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	placeReq := order.PlaceOrderRequest{
		UserID:               uid,
		SessionID:            r.Header.Get(headerSessionID),
		AddressID:            req.AddressID,
		PaymentMethod:        method,
		OrderNotes:           req.OrderNotes,
		DeliveryInstructions: req.DeliveryInstructions,
	}
	if req.GatewayOrderID != "" || req.GatewayPaymentID != "" || req.GatewaySignature != "" {
		placeReq.Proof = &payment.Proof{
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.GatewaySignature,
		}
	}

	o, err := h.orders.PlaceOrder(r.Context(), placeReq)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(o))
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "X-User-ID is required")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), uid)
	if err != nil {
		respondError(w, r, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for i := range orders {
		views = append(views, toOrderView(&orders[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetOrder returns one of the caller's orders with items and address.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "IDENTITY_REQUIRED", "X-User-ID is required")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), uid, chi.URLParam(r, "orderID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus advances an order through its lifecycle.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}
