package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/infrastructure/observability"
)

// RetentionSweeper periodically evicts settled transactions older than the
// retention window. Pending transactions are never evicted.
type RetentionSweeper struct {
	store     transaction.Evictor
	retention time.Duration
	interval  time.Duration
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRetentionSweeper(store transaction.Evictor, retention, interval time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.Sweep(ctx)
	}
}

// Sweep runs one eviction pass and returns the number of records removed.
func (s *RetentionSweeper) Sweep(ctx context.Context) int {
	evicted, err := s.store.EvictSettledBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return 0
	}
	if s.metrics != nil {
		s.metrics.EvictedTransactions.Add(float64(evicted))
		s.metrics.StoredTransactions.Set(float64(s.store.Len()))
	}
	if evicted > 0 {
		s.logger.Info().Int("evicted", evicted).Int("remaining", s.store.Len()).Msg("Evicted settled transactions")
	}
	return evicted
}
