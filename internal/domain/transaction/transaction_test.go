package transaction_test

import (
	"encoding/json"
	"testing"

	"github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teeOrder(t *testing.T) *transaction.Order {
	t.Helper()
	o, err := transaction.NewOrder("0712345678", []transaction.LineItem{
		{ID: "a", Name: "Tee", Price: 1200, Quantity: 2},
	}, 2400, transaction.OrderMerch)
	require.NoError(t, err)
	return o
}

func newPending(t *testing.T) *transaction.Transaction {
	t.Helper()
	tx, err := transaction.NewTransaction("ws_CO_1", teeOrder(t), map[string]any{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": "ws_CO_1",
	})
	require.NoError(t, err)
	return tx
}

func TestNewOrder_NormalizesPhone(t *testing.T) {
	o := teeOrder(t)
	assert.Equal(t, "254712345678", o.Phone)
	assert.Equal(t, 2400.0, o.TotalAmount)
	assert.Equal(t, transaction.OrderMerch, o.Type)
}

func TestNewOrder_ZeroTotalRejected(t *testing.T) {
	_, err := transaction.NewOrder("254712345678", []transaction.LineItem{
		{ID: "a", Name: "Tee", Price: 0, Quantity: 1},
	}, 0, transaction.OrderMerch)

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "totalAmount", ve.Field)
}

func TestNewOrder_MerchRequiresItems(t *testing.T) {
	_, err := transaction.NewOrder("254712345678", nil, 100, transaction.OrderMerch)

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "items", ve.Field)
}

func TestNewOrder_BookingWithoutItems(t *testing.T) {
	o, err := transaction.NewOrder("254712345678", nil, 1, transaction.OrderBooking)
	require.NoError(t, err)
	assert.Equal(t, transaction.OrderBooking, o.Type)
}

func TestNewOrder_InvalidItemQuantity(t *testing.T) {
	_, err := transaction.NewOrder("254712345678", []transaction.LineItem{
		{ID: "a", Name: "Tee", Price: 1200, Quantity: 0},
	}, 1200, transaction.OrderMerch)

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "items[0].quantity", ve.Field)
}

func TestOrder_Description(t *testing.T) {
	o, err := transaction.NewOrder("254712345678", []transaction.LineItem{
		{ID: "a", Name: "Tee", Price: 1200, Quantity: 2},
		{ID: "b", Name: "Cap", Price: 800, Quantity: 1},
	}, 3200, transaction.OrderMerch)
	require.NoError(t, err)

	assert.Equal(t, "2x Tee, 1x Cap", o.Description())
}

func TestNewTransaction_RequiresCheckoutID(t *testing.T) {
	_, err := transaction.NewTransaction("", teeOrder(t), nil)
	assert.ErrorIs(t, err, errors.ErrMissingCheckoutID)
}

func TestNewTransaction_Pending(t *testing.T) {
	tx := newPending(t)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, "29115-34620561-1", tx.MerchantRequestID)
	assert.Nil(t, tx.ResultCode)
	assert.False(t, tx.IsTerminal())
}

func TestStatusFromResultCode(t *testing.T) {
	tests := []struct {
		code int
		want transaction.Status
	}{
		{0, transaction.StatusSuccess},
		{1, transaction.StatusCancelled},
		{2, transaction.StatusFailed},
		{-1, transaction.StatusFailed},
		{1032, transaction.StatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, transaction.StatusFromResultCode(tt.code), "code %d", tt.code)
	}
}

// --- State Machine Tests ---

func TestApplyResult_Success(t *testing.T) {
	tx := newPending(t)
	raw := json.RawMessage(`{"Body":{}}`)

	require.NoError(t, tx.ApplyResult(0, "The service request is processed successfully.", raw))
	assert.Equal(t, transaction.StatusSuccess, tx.Status)
	require.NotNil(t, tx.ResultCode)
	assert.Equal(t, 0, *tx.ResultCode)
	assert.Equal(t, "The service request is processed successfully.", tx.ResultDesc)
	assert.NotNil(t, tx.CompletedAt)
	assert.JSONEq(t, `{"Body":{}}`, string(tx.Callback))
}

func TestApplyResult_Cancelled(t *testing.T) {
	tx := newPending(t)
	require.NoError(t, tx.ApplyResult(1, "Request cancelled by user", nil))
	assert.Equal(t, transaction.StatusCancelled, tx.Status)
}

func TestApplyResult_TerminalToTerminalRejected(t *testing.T) {
	tx := newPending(t)
	require.NoError(t, tx.ApplyResult(0, "ok", nil))

	err := tx.ApplyResult(2001, "wrong pin", nil)
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, transaction.StatusSuccess, tx.Status)
	assert.Equal(t, 0, *tx.ResultCode)
}

func TestTransitionTo_PendingRejected(t *testing.T) {
	tx := newPending(t)
	assert.False(t, tx.CanTransitionTo(transaction.StatusPending))
	assert.Error(t, tx.TransitionTo(transaction.StatusPending))
}

func TestClone_IsIndependent(t *testing.T) {
	tx := newPending(t)
	require.NoError(t, tx.ApplyResult(0, "ok", json.RawMessage(`{}`)))

	c := tx.Clone()
	c.Items[0].Quantity = 99
	*c.ResultCode = 5
	c.GatewayResponse["extra"] = true

	assert.Equal(t, 2, tx.Items[0].Quantity)
	assert.Equal(t, 0, *tx.ResultCode)
	assert.NotContains(t, tx.GatewayResponse, "extra")
}
