package transaction

import (
	"context"
	"time"
)

// UpdateFunc mutates a transaction inside Store.Update. Returning an error
// aborts the update and leaves the stored record untouched.
type UpdateFunc func(t *Transaction) error

// Store is the single source of truth for transaction status, keyed by the
// gateway's checkout (correlation) ID.
type Store interface {
	// Put records a transaction the gateway has accepted
	Put(ctx context.Context, t *Transaction) error

	// Get returns a copy of the transaction or errors.ErrTransactionNotFound
	Get(ctx context.Context, checkoutID string) (*Transaction, error)

	// Update applies fn to the stored record and returns the merged copy
	Update(ctx context.Context, checkoutID string, fn UpdateFunc) (*Transaction, error)
}

// Evictor is implemented by stores that support age-based retention.
type Evictor interface {
	// EvictSettledBefore removes terminal transactions completed before cutoff
	EvictSettledBefore(ctx context.Context, cutoff time.Time) (int, error)
	// Len returns the number of stored transactions
	Len() int
}
