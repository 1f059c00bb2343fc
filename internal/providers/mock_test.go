package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/starkville/storefront/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockProvider(t *testing.T) {
	provider := NewMockProvider("test")

	assert.NotNil(t, provider)
	assert.Equal(t, "test", provider.Name())
}

func TestMockProvider_InitiateSTKPush_Success(t *testing.T) {
	provider := NewMockProvider("test", WithLatency(time.Millisecond))

	result, err := provider.InitiateSTKPush(context.Background(), STKPushRequest{
		Phone:  "254712345678",
		Amount: 100,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.CheckoutRequestID, "ws_CO_"))
	assert.NotEmpty(t, result.MerchantRequestID)
	assert.Equal(t, "0", result.ResponseCode)
	assert.Equal(t, result.CheckoutRequestID, result.Raw["CheckoutRequestID"])
}

func TestMockProvider_UniqueCheckoutIDs(t *testing.T) {
	provider := NewMockProvider("test", WithLatency(0))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		result, err := provider.InitiateSTKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1})
		require.NoError(t, err)
		assert.False(t, seen[result.CheckoutRequestID])
		seen[result.CheckoutRequestID] = true
	}
}

func TestMockProvider_InitiateSTKPush_Failure(t *testing.T) {
	provider := NewMockProvider("test", WithLatency(0), WithFailureRate(1.0))

	result, err := provider.InitiateSTKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domainErrors.ErrGatewayRejected)
	assert.Contains(t, err.Error(), "simulated")
}

func TestMockProvider_InitiateSTKPush_Timeout(t *testing.T) {
	provider := NewMockProvider("test", WithLatency(0), WithTimeoutRate(1.0))

	_, err := provider.InitiateSTKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1})
	assert.ErrorIs(t, err, domainErrors.ErrGatewayTimeout)
}

func TestMockProvider_ContextCancelled(t *testing.T) {
	provider := NewMockProvider("test", WithLatency(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.InitiateSTKPush(ctx, STKPushRequest{Phone: "254712345678", Amount: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProvider_AutoCallback(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		_, _ = w.Write([]byte(`{"ResultCode":0,"ResultDesc":"Accepted"}`))
	}))
	defer srv.Close()

	provider := NewMockProvider("test", WithLatency(0), WithAutoCallback(srv.URL, 10*time.Millisecond, 1))
	result, err := provider.InitiateSTKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 1})
	require.NoError(t, err)

	select {
	case body := <-received:
		cb := body["Body"].(map[string]any)["stkCallback"].(map[string]any)
		assert.Equal(t, result.CheckoutRequestID, cb["CheckoutRequestID"])
		assert.Equal(t, float64(1), cb["ResultCode"])
		assert.Equal(t, "Request cancelled by user", cb["ResultDesc"])
	case <-time.After(2 * time.Second):
		t.Fatal("callback not delivered")
	}
}
