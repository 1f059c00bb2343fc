package bootstrap

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/infrastructure/config"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/starkville/storefront/internal/providers"
	"github.com/starkville/storefront/pkg/retry"
)

// NewGateway builds the configured STK push gateway behind its circuit
// breaker. metrics may be nil.
func NewGateway(cfg config.GatewayConfig, metrics *observability.Metrics, logger zerolog.Logger) (providers.Gateway, error) {
	var gw providers.Gateway
	switch cfg.Provider {
	case "daraja":
		tokenRetry := retry.DefaultConfig()
		if cfg.TokenRetries > 0 {
			tokenRetry.MaxAttempts = cfg.TokenRetries
		}
		if cfg.TokenRetryDelay > 0 {
			tokenRetry.InitialDelay = cfg.TokenRetryDelay
		}

		gw = providers.NewDarajaProvider(providers.DarajaConfig{
			BaseURL:        cfg.BaseURL,
			ConsumerKey:    cfg.ConsumerKey,
			ConsumerSecret: cfg.ConsumerSecret,
			ShortCode:      cfg.ShortCode,
			Passkey:        cfg.Passkey,
			CallbackURL:    cfg.CallbackURL,
			CacheToken:     cfg.CacheToken,
			Timeout:        cfg.HTTPTimeout,
			TokenRetry:     tokenRetry,
		}, providers.WithDarajaLogger(logger))
	case "mock":
		gw = providers.NewMockProvider("mock",
			providers.WithAutoCallback(cfg.CallbackURL, cfg.MockCallbackDelay, cfg.MockResultCode),
			providers.WithMockLogger(logger),
		)
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}

	factory := providers.NewFactory(providers.BreakerSettings{
		ConsecutiveFailures: cfg.CircuitBreakerThreshold,
		OpenTimeout:         cfg.CircuitBreakerTimeout,
	}, metrics, gw)
	return factory.Get(gw.Name())
}
