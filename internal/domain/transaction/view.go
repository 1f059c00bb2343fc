package transaction

import (
	"encoding/json"
	"time"
)

// StatusView is the public shape of a transaction, used by status queries,
// live events and the event relay.
type StatusView struct {
	Status     Status          `json:"status"`
	Type       OrderType       `json:"type"`
	Details    map[string]any  `json:"details"`
	ResultCode *int            `json:"resultCode,omitempty"`
	ResultDesc string          `json:"resultDesc,omitempty"`
	Callback   json.RawMessage `json:"callback,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// View renders t for clients. Details carries the gateway acknowledgement.
func (t *Transaction) View() StatusView {
	return StatusView{
		Status:     t.Status,
		Type:       t.Type,
		Details:    t.GatewayResponse,
		ResultCode: t.ResultCode,
		ResultDesc: t.ResultDesc,
		Callback:   t.Callback,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// Event is one committed transaction change, as relayed to other processes.
type Event struct {
	CheckoutID string     `json:"checkoutId"`
	Phone      string     `json:"phone"`
	Items      []LineItem `json:"items,omitempty"`
	Amount     float64    `json:"totalAmount"`
	StatusView
}

// NewEvent captures t as a relayable event.
func NewEvent(t *Transaction) Event {
	return Event{
		CheckoutID: t.CheckoutID,
		Phone:      t.Phone,
		Items:      t.Items,
		Amount:     t.TotalAmount,
		StatusView: t.View(),
	}
}
