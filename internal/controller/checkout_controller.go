package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/service"
)

const missingFieldsMessage = "Missing required fields: phone, items, totalAmount"

// CheckoutController handles order intake and status queries.
type CheckoutController struct {
	checkout *service.CheckoutService
}

// NewCheckoutController creates a new CheckoutController.
func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// MerchCheckout handles POST /merch-checkout
func (h *CheckoutController) MerchCheckout(w http.ResponseWriter, r *http.Request) {
	var req MerchCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.missingFields() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: missingFieldsMessage, Code: "validation_error"})
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.checkout.MerchCheckout(r.Context(), req.toService())
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{
		Success: true,
		OrderID: res.OrderID,
		Mpesa:   res.Gateway,
	})
}

// STKPush handles POST /stkpush
func (h *CheckoutController) STKPush(w http.ResponseWriter, r *http.Request) {
	var req STKPushRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.checkout.BookingCheckout(r.Context(), service.BookingCheckoutRequest{
		Phone:  req.Phone,
		Amount: req.Amount,
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{
		Success: true,
		OrderID: res.OrderID,
		Mpesa:   res.Gateway,
	})
}

// GetMerchOrder handles GET /merch-order/{id}
func (h *CheckoutController) GetMerchOrder(w http.ResponseWriter, r *http.Request) {
	t, err := h.checkout.GetMerchOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Order not found"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromMerchOrder(t))
}

// TransactionStatus handles GET /transaction-status/{id}
func (h *CheckoutController) TransactionStatus(w http.ResponseWriter, r *http.Request) {
	t, err := h.checkout.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domainErrors.ErrTransactionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "unknown"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t.View())
}
