package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/domain/transaction"
)

// AuditRepository persists relayed transaction events.
type AuditRepository interface {
	Append(ctx context.Context, streamID string, event transaction.Event) error
	RecordFulfilment(ctx context.Context, event transaction.Event) (bool, error)
}

// TransactionManager runs fn in one database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Lock is a mutual-exclusion lock shared between worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lock guarding key.
type LockFactory func(key string) Lock

// AuditRelay writes transaction events read from the relay stream to the
// audit log and marks paid merch orders for dispatch.
type AuditRelay struct {
	repo      AuditRepository
	txManager TransactionManager
	newLock   LockFactory
	logger    zerolog.Logger
}

func NewAuditRelay(repo AuditRepository, txManager TransactionManager, newLock LockFactory, logger zerolog.Logger) *AuditRelay {
	return &AuditRelay{
		repo:      repo,
		txManager: txManager,
		newLock:   newLock,
		logger:    logger,
	}
}

// Process handles one stream message. A returned error means the message
// should stay unacknowledged and be retried.
func (r *AuditRelay) Process(ctx context.Context, streamID string, event transaction.Event) error {
	logger := r.logger.With().
		Str("stream_id", streamID).
		Str("checkout_id", event.CheckoutID).
		Str("status", string(event.Status)).
		Logger()

	fulfil := event.Type == transaction.OrderMerch && event.Status == transaction.StatusSuccess
	if fulfil {
		lock := r.newLock("fulfilment:" + event.CheckoutID)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			return fmt.Errorf("%w: fulfilment of %s", domainErrors.ErrLockAcquisitionFailed, event.CheckoutID)
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to release fulfilment lock")
			}
		}()
	}

	return r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.repo.Append(txCtx, streamID, event); err != nil {
			return err
		}
		if !fulfil {
			logger.Debug().Msg("Transaction event recorded")
			return nil
		}

		created, err := r.repo.RecordFulfilment(txCtx, event)
		if err != nil {
			return err
		}
		if created {
			logger.Info().
				Str("phone", event.Phone).
				Float64("amount", event.Amount).
				Int("items", len(event.Items)).
				Msg("Merch order ready for dispatch")
		}
		return nil
	})
}
