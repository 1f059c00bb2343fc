package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTx(id string) *transaction.Transaction {
	now := time.Now()
	return &transaction.Transaction{
		CheckoutID:  id,
		Phone:       "254712345678",
		Items:       []transaction.LineItem{{ID: "a", Name: "Tee", Price: 1200, Quantity: 2}},
		TotalAmount: 2400,
		Type:        transaction.OrderMerch,
		Status:      transaction.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestTransactionStore_PutGet(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingTx("ws_CO_1")))

	got, err := s.Get(ctx, "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, got.Status)
	assert.Equal(t, 1, s.Len())
}

func TestTransactionStore_GetUnknown(t *testing.T) {
	s := NewTransactionStore()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
}

func TestTransactionStore_PutDuplicate(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingTx("ws_CO_1")))
	assert.ErrorIs(t, s.Put(ctx, pendingTx("ws_CO_1")), domainErrors.ErrInvalidInput)
}

func TestTransactionStore_GetReturnsCopy(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, pendingTx("ws_CO_1")))

	got, _ := s.Get(ctx, "ws_CO_1")
	got.Status = transaction.StatusSuccess

	again, _ := s.Get(ctx, "ws_CO_1")
	assert.Equal(t, transaction.StatusPending, again.Status)
}

func TestTransactionStore_Update(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, pendingTx("ws_CO_1")))

	merged, err := s.Update(ctx, "ws_CO_1", func(tx *transaction.Transaction) error {
		return tx.ApplyResult(0, "ok", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, merged.Status)
	assert.Equal(t, "254712345678", merged.Phone)

	stored, _ := s.Get(ctx, "ws_CO_1")
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
}

func TestTransactionStore_UpdateFailureLeavesRecord(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, pendingTx("ws_CO_1")))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "ws_CO_1", func(tx *transaction.Transaction) error {
		tx.Status = transaction.StatusFailed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, _ := s.Get(ctx, "ws_CO_1")
	assert.Equal(t, transaction.StatusPending, stored.Status)
}

func TestTransactionStore_UpdateUnknown(t *testing.T) {
	s := NewTransactionStore()

	called := false
	_, err := s.Update(context.Background(), "missing", func(tx *transaction.Transaction) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	assert.False(t, called)
	assert.Equal(t, 0, s.Len())
}

func TestTransactionStore_ConcurrentSettleOnlyOnce(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, pendingTx("ws_CO_1")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(code int) {
			defer wg.Done()
			_, err := s.Update(ctx, "ws_CO_1", func(tx *transaction.Transaction) error {
				return tx.ApplyResult(code, "", nil)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i % 3)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestTransactionStore_EvictSettledBefore(t *testing.T) {
	s := NewTransactionStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingTx("pending")))
	require.NoError(t, s.Put(ctx, pendingTx("settled")))
	_, err := s.Update(ctx, "settled", func(tx *transaction.Transaction) error {
		return tx.ApplyResult(0, "ok", nil)
	})
	require.NoError(t, err)

	evicted, err := s.EvictSettledBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = s.Get(ctx, "settled")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	_, err = s.Get(ctx, "pending")
	assert.NoError(t, err)
}
