package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/infrastructure/config"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	infraRedis "github.com/starkville/storefront/internal/infrastructure/redis"
	"github.com/starkville/storefront/internal/repository/postgres"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App bundles what every storefront process needs. Pool and Redis stay nil
// until ConnectPostgres and ConnectRedis are called.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	serviceName string
	tracer      *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger, serviceName: serviceName}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	return app, nil
}

// ConnectRedis opens the Redis client used by the event relay.
func (a *App) ConnectRedis(ctx context.Context) error {
	client, err := infraRedis.NewClient(ctx, &a.Config.Redis, a.Logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.Redis = client
	a.Logger.Info().Str("addr", a.Config.Redis.RedisAddr()).Msg("Connected to Redis")
	return nil
}

// ConnectPostgres opens the audit-log pool.
func (a *App) ConnectPostgres(ctx context.Context) error {
	pool, err := postgres.NewPool(ctx, &a.Config.Database, a.serviceName)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.Pool = pool
	a.Logger.Info().Msg("Connected to PostgreSQL")
	return nil
}

// Close releases connections and flushes pending spans.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
}
