package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	domainErrors "github.com/starkville/storefront/internal/domain/errors"
)

// MockProvider stands in for Daraja in development. It acknowledges every
// push and, when a callback URL is set, later posts a result to it the way
// the real gateway would.
type MockProvider struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0

	callbackURL   string
	callbackDelay time.Duration
	resultCode    int
	client        *http.Client
	logger        zerolog.Logger
}

type MockProviderOption func(*MockProvider)

func WithFailureRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.failureRate = rate }
}

func WithLatency(d time.Duration) MockProviderOption {
	return func(p *MockProvider) { p.latency = d }
}

func WithTimeoutRate(rate float64) MockProviderOption {
	return func(p *MockProvider) { p.timeoutRate = rate }
}

// WithAutoCallback posts a callback carrying resultCode to url after delay.
func WithAutoCallback(url string, delay time.Duration, resultCode int) MockProviderOption {
	return func(p *MockProvider) {
		p.callbackURL = url
		p.callbackDelay = delay
		p.resultCode = resultCode
	}
}

func WithMockLogger(l zerolog.Logger) MockProviderOption {
	return func(p *MockProvider) { p.logger = l }
}

func NewMockProvider(name string, opts ...MockProviderOption) *MockProvider {
	p := &MockProvider{
		name:    name,
		latency: 100 * time.Millisecond,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	select {
	case <-time.After(p.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < p.timeoutRate {
		return nil, domainErrors.ErrGatewayTimeout
	}

	if rand.Float64() < p.failureRate {
		body, _ := json.Marshal(map[string]string{
			"requestId":    uuid.NewString(),
			"errorCode":    "400.002.02",
			"errorMessage": fmt.Sprintf("%s: simulated rejection for %s", p.name, req.Phone),
		})
		return nil, domainErrors.NewGatewayRejectionError(http.StatusBadRequest, body)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	checkoutID := "ws_CO_" + time.Now().Format("02012006150405") + id[:12]
	merchantID := id[12:16] + "-" + id[16:24] + "-1"
	raw := map[string]any{
		"MerchantRequestID":   merchantID,
		"CheckoutRequestID":   checkoutID,
		"ResponseCode":        "0",
		"ResponseDescription": "Success. Request accepted for processing",
		"CustomerMessage":     "Success. Request accepted for processing",
	}

	if p.callbackURL != "" {
		go p.deliverCallback(merchantID, checkoutID)
	}

	return &STKPushResult{
		MerchantRequestID:   merchantID,
		CheckoutRequestID:   checkoutID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
		Raw:                 raw,
	}, nil
}

func (p *MockProvider) deliverCallback(merchantID, checkoutID string) {
	time.Sleep(p.callbackDelay)

	desc := "The service request is processed successfully."
	switch p.resultCode {
	case 0:
	case 1:
		desc = "Request cancelled by user"
	default:
		desc = "The balance is insufficient for the transaction."
	}
	body, _ := json.Marshal(map[string]any{
		"Body": map[string]any{
			"stkCallback": map[string]any{
				"MerchantRequestID": merchantID,
				"CheckoutRequestID": checkoutID,
				"ResultCode":        p.resultCode,
				"ResultDesc":        desc,
			},
		},
	})

	resp, err := p.client.Post(p.callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		p.logger.Warn().Err(err).Str("checkout_id", checkoutID).Msg("Mock callback delivery failed")
		return
	}
	resp.Body.Close()
	p.logger.Debug().Str("checkout_id", checkoutID).Int("status", resp.StatusCode).Msg("Mock callback delivered")
}
