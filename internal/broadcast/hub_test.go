package broadcast

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusPayload struct {
	Status     string `json:"status"`
	ResultDesc string `json:"resultDesc,omitempty"`
}

func receive(t *testing.T, sub *Subscriber) map[string]any {
	t.Helper()
	select {
	case frame := <-sub.Events():
		var ev map[string]any
		require.NoError(t, json.Unmarshal(frame, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func assertNoEvent(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case frame := <-sub.Events():
		t.Fatalf("unexpected event: %s", frame)
	default:
	}
}

func TestHub_BroadcastReachesEverySubscriber(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	n, err := h.Broadcast("ws_CO_1", statusPayload{Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, sub := range []*Subscriber{a, b} {
		ev := receive(t, sub)
		assert.Equal(t, "ws_CO_1", ev["checkoutId"])
		assert.Equal(t, "success", ev["status"])
	}
}

func TestHub_UnsubscribedNeverReceives(t *testing.T) {
	h := NewHub()
	stay := h.Subscribe()
	gone := h.Subscribe()
	h.Unsubscribe(gone.ID)

	n, err := h.Broadcast("ws_CO_1", statusPayload{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	receive(t, stay)
	assertNoEvent(t, gone)

	select {
	case <-gone.Done():
	default:
		t.Fatal("unsubscribed subscriber should be done")
	}
}

func TestHub_SubscriberAfterBroadcastMissesIt(t *testing.T) {
	h := NewHub()
	_, err := h.Broadcast("ws_CO_1", statusPayload{Status: "pending"})
	require.NoError(t, err)

	late := h.Subscribe()
	assertNoEvent(t, late)
}

func TestHub_FullSubscriberIsPrunedOthersStillReceive(t *testing.T) {
	h := NewHub(WithBufferSize(1))
	slow := h.Subscribe()
	fast := h.Subscribe()

	_, err := h.Broadcast("ws_CO_1", statusPayload{Status: "pending"})
	require.NoError(t, err)
	receive(t, fast)

	// slow never drained its single slot
	n, err := h.Broadcast("ws_CO_1", statusPayload{Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev := receive(t, fast)
	assert.Equal(t, "success", ev["status"])
	assert.Equal(t, 1, h.Len())

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber should have been pruned")
	}
}

func TestHub_SlowSubscriberSurvivesBurst(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe()

	for i := 0; i < 100; i++ {
		n, err := h.Broadcast("ws_CO_1", statusPayload{Status: "pending"})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	assert.Equal(t, 1, h.Len())

	for i := 0; i < 100; i++ {
		receive(t, slow)
	}
	select {
	case <-slow.Done():
		t.Fatal("slow subscriber should still be attached")
	default:
	}
}

func TestHub_PayloadFieldsAreFlattened(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	_, err := h.Broadcast("ws_CO_9", map[string]any{"status": "cancelled", "resultCode": 1})
	require.NoError(t, err)

	ev := receive(t, sub)
	assert.Equal(t, "ws_CO_9", ev["checkoutId"])
	assert.Equal(t, "cancelled", ev["status"])
	assert.Equal(t, float64(1), ev["resultCode"])
}

func TestHub_CheckoutIDOverridesPayloadField(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	_, err := h.Broadcast("real", map[string]any{"checkoutId": "spoofed"})
	require.NoError(t, err)
	assert.Equal(t, "real", receive(t, sub)["checkoutId"])
}

func TestHub_NonObjectPayloadRejected(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	_, err := h.Broadcast("ws_CO_1", []string{"not", "an", "object"})
	assert.Error(t, err)
	assertNoEvent(t, sub)
}

func TestHub_ConcurrentSubscribeAndBroadcast(t *testing.T) {
	h := NewHub(WithBufferSize(1024))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := h.Subscribe()
			h.Unsubscribe(sub.ID)
		}()
		go func() {
			defer wg.Done()
			_, err := h.Broadcast("ws_CO_1", statusPayload{Status: "pending"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.Len())
}

func TestHub_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	h := NewHub(WithMetrics(m))

	sub := h.Subscribe()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSubscribers))

	_, err := h.Broadcast("ws_CO_1", statusPayload{Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BroadcastDeliveries.WithLabelValues("delivered")))

	h.Unsubscribe(sub.ID)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSubscribers))
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	h.Close()

	assert.Equal(t, 0, h.Len())
	select {
	case <-a.Done():
	default:
		t.Fatal("subscriber should be done after Close")
	}
}
