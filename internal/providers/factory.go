package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker placed in front of each gateway.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker. Zero uses 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

type Factory struct {
	mu       sync.RWMutex
	settings BreakerSettings
	metrics  *observability.Metrics
	gateways map[string]*guardedGateway
}

func NewFactory(settings BreakerSettings, metrics *observability.Metrics, gateways ...Gateway) *Factory {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	f := &Factory{
		settings: settings,
		metrics:  metrics,
		gateways: make(map[string]*guardedGateway),
	}
	for _, g := range gateways {
		f.Register(g)
	}
	return f
}

// Register wraps g in a circuit breaker and makes it available by name.
func (f *Factory) Register(g Gateway) {
	name := g.Name()
	threshold := f.settings.ConsecutiveFailures
	metrics := f.metrics

	cb := gobreaker.NewCircuitBreaker[*STKPushResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     f.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	f.mu.Lock()
	f.gateways[name] = &guardedGateway{inner: g, breaker: cb, metrics: metrics}
	f.mu.Unlock()
}

// Get returns the named gateway behind its circuit breaker.
func (f *Factory) Get(name string) (Gateway, error) {
	f.mu.RLock()
	g, ok := f.gateways[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown gateway %q", name)
	}
	return g, nil
}

// isBreakerSuccess counts only gateway unavailability against the breaker.
// A rejected request proves the gateway is reachable.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var rejection *domainErrors.GatewayRejectionError
	if errors.As(err, &rejection) {
		return rejection.StatusCode < 500
	}
	return errors.Is(err, domainErrors.ErrCredentials) ||
		errors.Is(err, context.Canceled)
}

type guardedGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker[*STKPushResult]
	metrics *observability.Metrics
}

func (g *guardedGateway) Name() string { return g.inner.Name() }

func (g *guardedGateway) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	start := time.Now()
	result, err := g.breaker.Execute(func() (*STKPushResult, error) {
		return g.inner.InitiateSTKPush(ctx, req)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: circuit breaker %s", domainErrors.ErrGatewayUnavailable, g.breaker.State())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", domainErrors.ErrGatewayTimeout, err)
	}

	if g.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		g.metrics.GatewayDuration.WithLabelValues("stk_push", outcome).Observe(time.Since(start).Seconds())
		g.metrics.CircuitBreakerRequests.WithLabelValues(g.inner.Name(), outcome).Inc()
	}
	return result, err
}
