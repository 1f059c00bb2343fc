package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/starkville/storefront/internal/repository/memory"
	"github.com/starkville/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCallbackService(t *testing.T) (*CallbackService, *memory.TransactionStore, *testutil.MockBroadcaster, *observability.Metrics) {
	t.Helper()
	store := memory.NewTransactionStore()
	require.NoError(t, store.Put(context.Background(), testutil.NewPendingTransaction("ws_CO_1")))
	broadcaster := testutil.NewMockBroadcaster()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return NewCallbackService(store, broadcaster, WithMetrics(metrics)), store, broadcaster, metrics
}

func TestHandleSTKCallback_ResultCodes(t *testing.T) {
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
		t.Run(string(tt.want), func(t *testing.T) {
			svc, store, broadcaster, _ := setupCallbackService(t)
			raw := testutil.CallbackBody("ws_CO_1", tt.code, "desc")

			got, err := svc.HandleSTKCallback(context.Background(), STKCallback{
				CheckoutRequestID: "ws_CO_1",
				ResultCode:        tt.code,
				ResultDesc:        "desc",
				Raw:               raw,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			stored, err := store.Get(context.Background(), "ws_CO_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)
			require.NotNil(t, stored.ResultCode)
			assert.Equal(t, tt.code, *stored.ResultCode)
			assert.Equal(t, "desc", stored.ResultDesc)
			assert.JSONEq(t, string(raw), string(stored.Callback))

			calls := broadcaster.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "ws_CO_1", calls[0].CheckoutID)
			view := calls[0].Payload.(transaction.StatusView)
			assert.Equal(t, tt.want, view.Status)
			assert.Equal(t, tt.code, *view.ResultCode)
		})
	}
}

func TestHandleSTKCallback_UnknownCheckout(t *testing.T) {
	svc, store, broadcaster, metrics := setupCallbackService(t)

	_, err := svc.HandleSTKCallback(context.Background(), STKCallback{CheckoutRequestID: "ws_CO_unknown", ResultCode: 0})

	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	assert.Equal(t, 1, store.Len())
	stored, _ := store.Get(context.Background(), "ws_CO_1")
	assert.Equal(t, transaction.StatusPending, stored.Status)
	assert.Empty(t, broadcaster.Calls())
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CallbacksTotal.WithLabelValues("unknown")))
}

func TestHandleSTKCallback_MissingCheckoutID(t *testing.T) {
	svc, _, broadcaster, _ := setupCallbackService(t)

	_, err := svc.HandleSTKCallback(context.Background(), STKCallback{ResultCode: 0})

	assert.ErrorIs(t, err, domainErrors.ErrMalformedCallback)
	assert.Empty(t, broadcaster.Calls())
}

func TestHandleSTKCallback_SecondCallbackRejected(t *testing.T) {
	svc, store, broadcaster, metrics := setupCallbackService(t)
	ctx := context.Background()

	_, err := svc.HandleSTKCallback(ctx, STKCallback{CheckoutRequestID: "ws_CO_1", ResultCode: 0, ResultDesc: "ok"})
	require.NoError(t, err)

	_, err = svc.HandleSTKCallback(ctx, STKCallback{CheckoutRequestID: "ws_CO_1", ResultCode: 1, ResultDesc: "cancelled"})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)

	stored, _ := store.Get(ctx, "ws_CO_1")
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Equal(t, "ok", stored.ResultDesc)
	assert.Len(t, broadcaster.Calls(), 1)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CallbacksTotal.WithLabelValues("duplicate")))
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	store := memory.NewTransactionStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, testutil.NewSettledTransaction("old", transaction.StatusSuccess, now.Add(-2*time.Hour))))
	require.NoError(t, store.Put(ctx, testutil.NewSettledTransaction("recent", transaction.StatusFailed, now.Add(-time.Minute))))
	require.NoError(t, store.Put(ctx, testutil.NewPendingTransaction("pending")))

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	sweeper := NewRetentionSweeper(store, time.Hour, time.Minute, metrics, testLogger())

	assert.Equal(t, 1, sweeper.Sweep(ctx))
	assert.Equal(t, 2, store.Len())
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.EvictedTransactions))
	assert.Equal(t, float64(2), promtest.ToFloat64(metrics.StoredTransactions))
}

func TestRetentionSweeper_RunStopsOnCancel(t *testing.T) {
	sweeper := NewRetentionSweeper(memory.NewTransactionStore(), time.Hour, time.Millisecond, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
