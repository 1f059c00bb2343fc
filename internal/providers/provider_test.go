package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	name  string
	err   error
	calls int
}

func (s *stubGateway) Name() string { return s.name }

func (s *stubGateway) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &STKPushResult{CheckoutRequestID: "ws_CO_1"}, nil
}

func TestFactory_Get(t *testing.T) {
	factory := NewFactory(BreakerSettings{}, nil, NewMockProvider("mock"))

	gw, err := factory.Get("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", gw.Name())
}

func TestFactory_Get_UnknownGateway(t *testing.T) {
	factory := NewFactory(BreakerSettings{}, nil)

	gw, err := factory.Get("unknown")
	assert.Error(t, err)
	assert.Nil(t, gw)
	assert.Contains(t, err.Error(), "unknown gateway")
}

func TestFactory_Register(t *testing.T) {
	factory := NewFactory(BreakerSettings{}, nil)
	factory.Register(NewMockProvider("custom"))

	gw, err := factory.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", gw.Name())
}

func TestFactory_BreakerOpensOnUnavailability(t *testing.T) {
	stub := &stubGateway{name: "daraja", err: domainErrors.ErrGatewayUnavailable}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	factory := NewFactory(BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, metrics, stub)
	gw, err := factory.Get("daraja")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := gw.InitiateSTKPush(context.Background(), STKPushRequest{})
		assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
	}

	_, err = gw.InitiateSTKPush(context.Background(), STKPushRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
	assert.Equal(t, 2, stub.calls, "open breaker short-circuits")
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("daraja")))
}

func TestFactory_RejectionsDoNotTripBreaker(t *testing.T) {
	stub := &stubGateway{name: "daraja", err: domainErrors.NewGatewayRejectionError(400, []byte(`{"errorMessage":"bad"}`))}
	factory := NewFactory(BreakerSettings{ConsecutiveFailures: 2}, nil, stub)
	gw, _ := factory.Get("daraja")

	for i := 0; i < 5; i++ {
		_, err := gw.InitiateSTKPush(context.Background(), STKPushRequest{})
		assert.ErrorIs(t, err, domainErrors.ErrGatewayRejected)
	}
	assert.Equal(t, 5, stub.calls)
}

func TestFactory_DeadlineMapsToTimeout(t *testing.T) {
	stub := &stubGateway{name: "daraja", err: context.DeadlineExceeded}
	factory := NewFactory(BreakerSettings{}, nil, stub)
	gw, _ := factory.Get("daraja")

	_, err := gw.InitiateSTKPush(context.Background(), STKPushRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrGatewayTimeout)
}

func TestIsBreakerSuccess(t *testing.T) {
	assert.True(t, isBreakerSuccess(nil))
	assert.True(t, isBreakerSuccess(domainErrors.NewGatewayRejectionError(400, nil)))
	assert.False(t, isBreakerSuccess(domainErrors.NewGatewayRejectionError(503, nil)))
	assert.True(t, isBreakerSuccess(domainErrors.ErrCredentials))
	assert.False(t, isBreakerSuccess(errors.New("connection refused")))
}
