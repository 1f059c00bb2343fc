package memory

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
)

// TransactionStore implements transaction.Store in process memory.
// Records live until the process exits unless EvictSettledBefore is called.
type TransactionStore struct {
	mu           sync.RWMutex
	transactions map[string]*transaction.Transaction
}

// NewTransactionStore creates an empty TransactionStore.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		transactions: make(map[string]*transaction.Transaction),
	}
}

// Put stores a copy of t under its checkout ID.
func (s *TransactionStore) Put(ctx context.Context, t *transaction.Transaction) error {
	if t.CheckoutID == "" {
		return domainErrors.ErrMissingCheckoutID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[t.CheckoutID]; exists {
		return domainErrors.NewDomainError(
			"duplicate_transaction",
			"transaction "+t.CheckoutID+" already recorded",
			domainErrors.ErrInvalidInput,
		)
	}
	s.transactions[t.CheckoutID] = t.Clone()
	return nil
}

// Get returns a copy of the stored transaction.
func (s *TransactionStore) Get(ctx context.Context, checkoutID string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[checkoutID]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

// Update runs fn against a working copy under the write lock and commits it
// only when fn succeeds, so a failed transition never leaks a partial write.
func (s *TransactionStore) Update(ctx context.Context, checkoutID string, fn transaction.UpdateFunc) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.transactions[checkoutID]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.transactions[checkoutID] = working
	return working.Clone(), nil
}

// EvictSettledBefore drops terminal transactions completed before cutoff.
// Pending transactions are kept regardless of age.
func (s *TransactionStore) EvictSettledBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, t := range s.transactions {
		if t.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(s.transactions, id)
			evicted++
		}
	}
	return evicted, nil
}

// Len returns the number of stored transactions.
func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}
