package service

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayFixture struct {
	relay  *AuditRelay
	repo   *testutil.MockAuditRepository
	tx     *testutil.MockTransactionManager
	locker *testutil.MockLocker
}

func setupAuditRelay() *relayFixture {
	f := &relayFixture{
		repo:   testutil.NewMockAuditRepository(),
		tx:     testutil.NewMockTransactionManager(),
		locker: testutil.NewMockLocker(),
	}
	f.relay = NewAuditRelay(f.repo, f.tx, func(key string) Lock { return f.locker.Lock(key) }, testLogger())
	return f
}

func settledEvent(id string, status transaction.Status) transaction.Event {
	t := testutil.NewPendingTransaction(id)
	t.Status = status
	return transaction.NewEvent(t)
}

func TestAuditRelay_PendingIsOnlyRecorded(t *testing.T) {
	f := setupAuditRelay()

	require.NoError(t, f.relay.Process(context.Background(), "1-0", settledEvent("ws_CO_1", transaction.StatusPending)))

	assert.Len(t, f.repo.Events(), 1)
	assert.False(t, f.repo.Fulfilled("ws_CO_1"))
}

func TestAuditRelay_PaidMerchIsFulfilledOnce(t *testing.T) {
	f := setupAuditRelay()
	ctx := context.Background()
	event := settledEvent("ws_CO_1", transaction.StatusSuccess)

	require.NoError(t, f.relay.Process(ctx, "2-0", event))
	require.NoError(t, f.relay.Process(ctx, "2-0", event))

	assert.True(t, f.repo.Fulfilled("ws_CO_1"))
	assert.False(t, f.locker.Held("fulfilment:ws_CO_1"), "lock must be released")
}

func TestAuditRelay_FailedAndBookingAreNotFulfilled(t *testing.T) {
	f := setupAuditRelay()
	ctx := context.Background()

	booking := settledEvent("ws_CO_2", transaction.StatusSuccess)
	booking.Type = transaction.OrderBooking

	require.NoError(t, f.relay.Process(ctx, "3-0", settledEvent("ws_CO_1", transaction.StatusFailed)))
	require.NoError(t, f.relay.Process(ctx, "3-1", booking))

	assert.False(t, f.repo.Fulfilled("ws_CO_1"))
	assert.False(t, f.repo.Fulfilled("ws_CO_2"))
	assert.Len(t, f.repo.Events(), 2)
}

func TestAuditRelay_LockHeldElsewhere(t *testing.T) {
	f := setupAuditRelay()
	ctx := context.Background()
	other := f.locker.Lock("fulfilment:ws_CO_1")
	ok, err := other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = f.relay.Process(ctx, "4-0", settledEvent("ws_CO_1", transaction.StatusSuccess))

	assert.ErrorIs(t, err, domainErrors.ErrLockAcquisitionFailed)
	assert.Empty(t, f.repo.Events())
}

func TestAuditRelay_AppendErrorPropagates(t *testing.T) {
	f := setupAuditRelay()
	f.repo.AppendFunc = func(ctx context.Context, streamID string, event transaction.Event) error {
		return errors.New("db down")
	}

	err := f.relay.Process(context.Background(), "5-0", settledEvent("ws_CO_1", transaction.StatusSuccess))

	assert.EqualError(t, err, "db down")
	assert.False(t, f.repo.Fulfilled("ws_CO_1"))
	assert.False(t, f.locker.Held("fulfilment:ws_CO_1"))
}
