// Package broadcast fans transaction updates out to live event-stream clients.
//
// Subscribers are not bound to a transaction: every subscriber receives every
// event and is expected to filter on checkoutId itself.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/starkville/storefront/internal/infrastructure/observability"
)

// defaultBufferSize leaves a live but slow reader room for a burst of
// updates; a subscriber that falls further behind is pruned and must
// resubscribe.
const defaultBufferSize = 256

// Subscriber is one open notification channel.
type Subscriber struct {
	ID string

	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Events delivers serialized event payloads. It is never closed; select on
// Done to learn that the subscriber was removed.
func (s *Subscriber) Events() <-chan []byte {
	return s.events
}

// Done is closed once the subscriber has been removed from the hub.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub is the Notification Broadcaster.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets how many undelivered events a subscriber may queue
// before it is treated as dead and pruned.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithMetrics records subscriber and delivery metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the hub logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  defaultBufferSize,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New().String(),
		events: make(chan []byte, h.bufferSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[sub.ID] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.setGauge(count)
	h.logger.Debug().Str("subscriber_id", sub.ID).Int("subscribers", count).Msg("Subscriber added")
	return sub
}

// Unsubscribe removes a subscriber. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	sub.close()
	h.setGauge(count)
	h.logger.Debug().Str("subscriber_id", id).Int("subscribers", count).Msg("Subscriber removed")
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast serializes {checkoutId, ...payload} and offers it to every
// subscriber registered at call time. A subscriber whose queue is full is
// pruned; the others are unaffected. It returns the number of deliveries.
func (h *Hub) Broadcast(checkoutID string, payload any) (int, error) {
	frame, err := encodeEvent(checkoutID, payload)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	var stale []string
	for _, sub := range snapshot {
		select {
		case <-sub.done:
			continue
		default:
		}

		select {
		case sub.events <- frame:
			delivered++
		default:
			stale = append(stale, sub.ID)
		}
	}

	for _, id := range stale {
		h.logger.Warn().Str("subscriber_id", id).Str("checkout_id", checkoutID).Msg("Subscriber queue full, dropping subscriber")
		h.Unsubscribe(id)
	}

	if h.metrics != nil {
		h.metrics.BroadcastsTotal.Inc()
		h.metrics.BroadcastDeliveries.WithLabelValues("delivered").Add(float64(delivered))
		h.metrics.BroadcastDeliveries.WithLabelValues("dropped").Add(float64(len(stale)))
	}
	return delivered, nil
}

// Close removes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	h.setGauge(0)
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Set(float64(n))
	}
}

// encodeEvent flattens payload's JSON object fields next to checkoutId.
func encodeEvent(checkoutID string, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal event payload: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("event payload must be a JSON object: %w", err)
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	id, _ := json.Marshal(checkoutID)
	fields["checkoutId"] = id

	frame, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return frame, nil
}
