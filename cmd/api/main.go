package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/starkville/storefront/internal/bootstrap"
	"github.com/starkville/storefront/internal/broadcast"
	"github.com/starkville/storefront/internal/controller"
	"github.com/starkville/storefront/internal/domain/idempotency"
	infraRedis "github.com/starkville/storefront/internal/infrastructure/redis"
	"github.com/starkville/storefront/internal/repository/memory"
	"github.com/starkville/storefront/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "storefront-api", "storefront")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app); err != nil {
		app.Logger.Error().Err(err).Msg("Server error")
		app.Close()
		os.Exit(1)
	}
	app.Logger.Info().Msg("Server exited")
}

func run(ctx context.Context, app *bootstrap.App) error {
	cfg := app.Config

	// --- Stores ---
	store := memory.NewTransactionStore()
	var idempotencyStore idempotency.Store = memory.NewIdempotencyStore()

	// --- Notification ---
	hub := broadcast.NewHub(
		broadcast.WithBufferSize(cfg.Events.SubscriberBuffer),
		broadcast.WithMetrics(app.Metrics),
		broadcast.WithLogger(app.Logger),
	)
	defer hub.Close()

	serviceOpts := []service.Option{
		service.WithMetrics(app.Metrics),
		service.WithLogger(app.Logger),
	}

	if cfg.Events.RelayEnabled {
		if err := app.ConnectRedis(ctx); err != nil {
			return err
		}
		producer := infraRedis.NewStreamProducer(app.Redis, cfg.Events.Stream)
		serviceOpts = append(serviceOpts, service.WithPublisher(producer))
		idempotencyStore = infraRedis.NewIdempotencyStore(app.Redis)
		app.Logger.Info().Str("stream", producer.Stream()).Msg("Relaying transaction events to Redis")
	}

	// --- Gateway ---
	gateway, err := bootstrap.NewGateway(cfg.Gateway, app.Metrics, app.Logger)
	if err != nil {
		return err
	}
	app.Logger.Info().Str("gateway", gateway.Name()).Msg("Payment gateway configured")

	// --- Services ---
	checkoutSvc := service.NewCheckoutService(store, gateway, hub, service.CheckoutConfig{
		MerchAccountRef:   cfg.Gateway.MerchAccountRef,
		BookingAccountRef: cfg.Gateway.BookingAccountRef,
		DefaultPhone:      cfg.Gateway.TestMSISDN,
	}, serviceOpts...)
	callbackSvc := service.NewCallbackService(store, hub, serviceOpts...)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		CheckoutService:   checkoutSvc,
		CallbackService:   callbackSvc,
		Hub:               hub,
		IdempotencyStore:  idempotencyStore,
		RedisClient:       app.Redis,
		Metrics:           app.Metrics,
		ServerConfig:      cfg.Server,
		HeartbeatInterval: cfg.Events.HeartbeatInterval,
		Logger:            app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// 1. HTTP server.
	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// 2. Retention sweeper for settled transactions.
	if cfg.Store.Retention > 0 {
		sweeper := service.NewRetentionSweeper(store, cfg.Store.Retention, cfg.Store.SweepInterval, app.Metrics, app.Logger)
		g.Go(func() error {
			return sweeper.Run(gCtx)
		})
	}

	// 3. Graceful shutdown. Event streams are closed first so Shutdown does
	// not wait on them.
	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	return g.Wait()
}
