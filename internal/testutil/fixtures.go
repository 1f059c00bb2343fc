package testutil

import (
	"time"

	"github.com/starkville/storefront/internal/domain/transaction"
)

// TeeItems is a two-tee cart worth 2400.
func TeeItems() []transaction.LineItem {
	return []transaction.LineItem{{ID: "a", Name: "Tee", Price: 1200, Quantity: 2}}
}

// NewPendingTransaction returns a merch transaction awaiting its callback.
func NewPendingTransaction(checkoutID string) *transaction.Transaction {
	now := time.Now()
	return &transaction.Transaction{
		CheckoutID:        checkoutID,
		MerchantRequestID: "29115-34620561-1",
		Phone:             "254712345678",
		Items:             TeeItems(),
		TotalAmount:       2400,
		Type:              transaction.OrderMerch,
		Status:            transaction.StatusPending,
		GatewayResponse:   NewSTKPushResult(checkoutID).Raw,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewSettledTransaction returns a transaction settled with status at completedAt.
func NewSettledTransaction(checkoutID string, status transaction.Status, completedAt time.Time) *transaction.Transaction {
	t := NewPendingTransaction(checkoutID)
	t.Status = status
	t.CompletedAt = &completedAt
	t.UpdatedAt = completedAt
	return t
}
