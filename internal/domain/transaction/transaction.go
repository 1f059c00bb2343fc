package transaction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/starkville/storefront/internal/domain/errors"
)

// Status represents the transaction status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is expected from s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// OrderType classifies what the payment is for
type OrderType string

const (
	OrderMerch   OrderType = "merch"
	OrderBooking OrderType = "booking"
)

// Gateway result codes with a dedicated status. Every other code is a failure.
const (
	ResultCodeSuccess   = 0
	ResultCodeCancelled = 1
)

// StatusFromResultCode maps a gateway callback result code to a status.
func StatusFromResultCode(code int) Status {
	switch code {
	case ResultCodeSuccess:
		return StatusSuccess
	case ResultCodeCancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// LineItem is one cart line of a merch order.
type LineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Order is a validated purchase request that has not reached the gateway yet.
type Order struct {
	Phone       string
	Items       []LineItem
	TotalAmount float64
	Type        OrderType
}

// NewOrder validates a candidate purchase and normalizes the payer phone.
func NewOrder(phone string, items []LineItem, totalAmount float64, orderType OrderType) (*Order, error) {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	if orderType == OrderMerch && len(items) == 0 {
		return nil, errors.NewValidationError("items", "at least one item is required")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, errors.NewValidationError(fmt.Sprintf("items[%d].name", i), "cannot be empty")
		}
		if item.Quantity <= 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if item.Price < 0 {
			return nil, errors.NewValidationError(fmt.Sprintf("items[%d].price", i), "cannot be negative")
		}
	}

	if totalAmount <= 0 {
		return nil, errors.NewValidationError("totalAmount", "must be greater than 0")
	}

	return &Order{
		Phone:       normalized,
		Items:       items,
		TotalAmount: totalAmount,
		Type:        orderType,
	}, nil
}

// Description renders the items as "<quantity>x <name>" joined by commas.
func (o *Order) Description() string {
	parts := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.Name))
	}
	return strings.Join(parts, ", ")
}

// Transaction tracks one STK push from gateway acknowledgement to its result.
type Transaction struct {
	CheckoutID        string
	MerchantRequestID string
	Phone             string
	Items             []LineItem
	TotalAmount       float64
	Type              OrderType
	Status            Status
	ResultCode        *int
	ResultDesc        string
	GatewayResponse   map[string]any
	Callback          json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// NewTransaction records an order the gateway has accepted under checkoutID.
func NewTransaction(checkoutID string, order *Order, gatewayResponse map[string]any) (*Transaction, error) {
	if checkoutID == "" {
		return nil, errors.ErrMissingCheckoutID
	}

	merchantRequestID, _ := gatewayResponse["MerchantRequestID"].(string)
	now := time.Now()
	return &Transaction{
		CheckoutID:        checkoutID,
		MerchantRequestID: merchantRequestID,
		Phone:             order.Phone,
		Items:             order.Items,
		TotalAmount:       order.TotalAmount,
		Type:              order.Type,
		Status:            StatusPending,
		GatewayResponse:   gatewayResponse,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransitionTo checks if the transaction can transition to the given status
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	return t.Status == StatusPending && newStatus.IsTerminal()
}

// TransitionTo transitions the transaction to a new status
func (t *Transaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	now := time.Now()
	t.Status = newStatus
	t.UpdatedAt = now
	t.CompletedAt = &now
	return nil
}

// ApplyResult settles the transaction from a gateway callback.
func (t *Transaction) ApplyResult(resultCode int, resultDesc string, raw json.RawMessage) error {
	if err := t.TransitionTo(StatusFromResultCode(resultCode)); err != nil {
		return err
	}
	code := resultCode
	t.ResultCode = &code
	t.ResultDesc = resultDesc
	t.Callback = raw
	return nil
}

// IsTerminal checks if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.Items != nil {
		c.Items = append([]LineItem(nil), t.Items...)
	}
	if t.ResultCode != nil {
		code := *t.ResultCode
		c.ResultCode = &code
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.GatewayResponse != nil {
		c.GatewayResponse = make(map[string]any, len(t.GatewayResponse))
		for k, v := range t.GatewayResponse {
			c.GatewayResponse[k] = v
		}
	}
	if t.Callback != nil {
		c.Callback = append(json.RawMessage(nil), t.Callback...)
	}
	return &c
}
