package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/infrastructure/observability"
)

// Broadcaster fans a committed transaction state out to live clients.
type Broadcaster interface {
	Broadcast(checkoutID string, payload any) (int, error)
}

// EventPublisher relays committed transaction changes to other processes.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, event transaction.Event) error
}

type options struct {
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// Option configures CheckoutService and CallbackService.
type Option func(*options)

// WithPublisher relays every committed change through p in addition to the
// live broadcast.
func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// notify runs after the store has committed t. Delivery failures are logged
// and never fail the request that caused the change.
func (o *options) notify(ctx context.Context, b Broadcaster, t *transaction.Transaction) {
	delivered, err := b.Broadcast(t.CheckoutID, t.View())
	if err != nil {
		o.logger.Error().Err(err).Str("checkout_id", t.CheckoutID).Msg("Failed to broadcast transaction update")
	} else {
		o.logger.Debug().
			Str("checkout_id", t.CheckoutID).
			Str("status", string(t.Status)).
			Int("subscribers", delivered).
			Msg("Broadcast transaction update")
	}

	if o.publisher != nil {
		if err := o.publisher.PublishTransactionEvent(ctx, transaction.NewEvent(t)); err != nil {
			o.logger.Warn().Err(err).Str("checkout_id", t.CheckoutID).Msg("Failed to relay transaction event")
		}
	}
}

func (o *options) trackStored(store transaction.Store) {
	if o.metrics == nil {
		return
	}
	if ev, ok := store.(transaction.Evictor); ok {
		o.metrics.StoredTransactions.Set(float64(ev.Len()))
	}
}
