package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/bootstrap"
	infraRedis "github.com/starkville/storefront/internal/infrastructure/redis"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/starkville/storefront/internal/repository/postgres"
	"github.com/starkville/storefront/internal/service"
	"golang.org/x/sync/errgroup"
)

const (
	claimInterval = 30 * time.Second
	claimMinIdle  = time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "storefront-worker", "storefront_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app); err != nil {
		app.Logger.Error().Err(err).Msg("Worker error")
		app.Close()
		os.Exit(1)
	}
	app.Logger.Info().Msg("Worker exited")
}

func run(ctx context.Context, app *bootstrap.App) error {
	if err := app.ConnectPostgres(ctx); err != nil {
		return err
	}
	if err := app.ConnectRedis(ctx); err != nil {
		return err
	}

	// --- Repositories ---
	auditRepo := postgres.NewAuditRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	workerCfg := app.Config.Worker
	relay := service.NewAuditRelay(auditRepo, txManager, func(key string) service.Lock {
		return infraRedis.NewDistributedLock(app.Redis, key, workerCfg.LockTTL)
	}, app.Logger)

	// --- Transaction event consumer ---
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		app.Config.Events.Stream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	app.Logger.Info().
		Str("stream", consumer.Stream()).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for messages...")

	p := &processor{consumer: consumer, relay: relay, metrics: app.Metrics, logger: app.Logger}

	g, gCtx := errgroup.WithContext(ctx)

	// 1. New messages.
	g.Go(func() error {
		return p.runReader(gCtx)
	})

	// 2. Messages left unacknowledged by a failed attempt or a dead consumer.
	g.Go(func() error {
		return p.runClaimer(gCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type processor struct {
	consumer *infraRedis.StreamConsumer
	relay    *service.AuditRelay
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func (p *processor) runReader(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := p.consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(time.Second)
			continue
		}
		p.handle(ctx, messages)
	}
}

func (p *processor) runClaimer(ctx context.Context) error {
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		messages, err := p.consumer.ClaimStale(ctx, claimMinIdle)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to claim stale messages")
			continue
		}
		if len(messages) > 0 {
			p.logger.Info().Int("count", len(messages)).Msg("Reprocessing stale messages")
		}
		p.handle(ctx, messages)
	}
}

func (p *processor) handle(ctx context.Context, messages []goredis.XMessage) {
	stream := p.consumer.Stream()
	for _, msg := range messages {
		start := time.Now()
		status := p.process(ctx, msg)
		if p.metrics != nil {
			p.metrics.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
			p.metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())
		}
	}
}

// process returns the outcome label. Failed messages stay pending so the
// claimer retries them; undecodable ones are acknowledged and dropped.
func (p *processor) process(ctx context.Context, msg goredis.XMessage) string {
	event, err := infraRedis.DecodeTransactionEvent(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("stream_id", msg.ID).Msg("Invalid transaction event, dropping")
		p.ack(ctx, msg.ID)
		return "invalid"
	}

	if err := p.relay.Process(ctx, msg.ID, event); err != nil {
		p.logger.Error().Err(err).Str("stream_id", msg.ID).Str("checkout_id", event.CheckoutID).Msg("Failed to process transaction event")
		return "error"
	}

	p.ack(ctx, msg.ID)
	return "success"
}

func (p *processor) ack(ctx context.Context, id string) {
	if err := p.consumer.Ack(ctx, id); err != nil {
		p.logger.Error().Err(err).Str("stream_id", id).Msg("Failed to ack message")
	}
}
