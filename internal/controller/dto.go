package controller

import (
	"encoding/json"
	"time"

	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/service"
)

// --- Request DTOs ---

// MerchCheckoutRequest is the cart a storefront page submits for payment.
type MerchCheckoutRequest struct {
	Phone       string            `json:"phone"`
	Items       []LineItemRequest `json:"items" validate:"dive"`
	TotalAmount *float64          `json:"totalAmount"`
}

// LineItemRequest is one cart line.
type LineItemRequest struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
}

// missingFields mirrors the storefront's required-field check: a zero total
// counts as missing.
func (r *MerchCheckoutRequest) missingFields() bool {
	return r.Phone == "" || r.Items == nil || r.TotalAmount == nil || *r.TotalAmount == 0
}

func (r *MerchCheckoutRequest) toService() service.MerchCheckoutRequest {
	items := make([]transaction.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, transaction.LineItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}
	var total float64
	if r.TotalAmount != nil {
		total = *r.TotalAmount
	}
	return service.MerchCheckoutRequest{Phone: r.Phone, Items: items, TotalAmount: total}
}

// STKPushRequest is an event booking payment. Both fields are optional.
type STKPushRequest struct {
	Phone  string  `json:"phone"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

// CallbackRequest is the envelope the gateway posts to /callback.
type CallbackRequest struct {
	Body struct {
		STKCallback *STKCallbackPayload `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallbackPayload is the result of one STK push.
type STKCallbackPayload struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

// --- Response DTOs ---

// CheckoutResponse is returned for an accepted STK push.
type CheckoutResponse struct {
	Success bool           `json:"success"`
	OrderID string         `json:"orderId"`
	Mpesa   map[string]any `json:"mpesa"`
}

// CheckoutErrorResponse reports a failed STK push. Error is either a message
// or the gateway's error body.
type CheckoutErrorResponse struct {
	Success bool            `json:"success"`
	Error   json.RawMessage `json:"error"`
	Details string          `json:"details,omitempty"`
}

// MerchOrderResponse is a merch order with its payment status.
type MerchOrderResponse struct {
	OrderID       string                 `json:"orderId"`
	Phone         string                 `json:"phone"`
	Items         []transaction.LineItem `json:"items"`
	TotalAmount   float64                `json:"totalAmount"`
	Status        transaction.Status     `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	MpesaResponse map[string]any         `json:"mpesaResponse"`
	PaymentStatus transaction.Status     `json:"paymentStatus"`
}

// CallbackAck is the fixed acknowledgement the gateway expects.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var acceptedAck = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// --- Conversion helpers ---

// FromMerchOrder converts a merch transaction to its order view.
func FromMerchOrder(t *transaction.Transaction) *MerchOrderResponse {
	return &MerchOrderResponse{
		OrderID:       t.CheckoutID,
		Phone:         t.Phone,
		Items:         t.Items,
		TotalAmount:   t.TotalAmount,
		Status:        t.Status,
		Timestamp:     t.CreatedAt,
		MpesaResponse: t.GatewayResponse,
		PaymentStatus: t.Status,
	}
}
