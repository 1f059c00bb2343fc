package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/providers"
)

// --- Gateway Mock ---

// MockGateway is a mock implementation of providers.Gateway. Without
// InitiateFunc it acknowledges every push with sequential checkout IDs.
type MockGateway struct {
	mu       sync.Mutex
	requests []providers.STKPushRequest
	seq      int

	InitiateFunc func(ctx context.Context, req providers.STKPushRequest) (*providers.STKPushResult, error)
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) InitiateSTKPush(ctx context.Context, req providers.STKPushRequest) (*providers.STKPushResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return NewSTKPushResult(fmt.Sprintf("ws_CO_TEST%04d", seq)), nil
}

// Requests returns every push received so far.
func (m *MockGateway) Requests() []providers.STKPushRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.STKPushRequest(nil), m.requests...)
}

// Calls returns the number of pushes received.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// --- Broadcaster Mock ---

// BroadcastCall is one recorded Broadcast invocation.
type BroadcastCall struct {
	CheckoutID string
	Payload    any
}

// MockBroadcaster records broadcasts instead of delivering them.
type MockBroadcaster struct {
	mu    sync.Mutex
	calls []BroadcastCall

	BroadcastFunc func(checkoutID string, payload any) (int, error)
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Broadcast(checkoutID string, payload any) (int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, BroadcastCall{CheckoutID: checkoutID, Payload: payload})
	m.mu.Unlock()

	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(checkoutID, payload)
	}
	return 1, nil
}

func (m *MockBroadcaster) Calls() []BroadcastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BroadcastCall(nil), m.calls...)
}

// Statuses returns the status of every broadcast payload that carries one.
func (m *MockBroadcaster) Statuses() []transaction.Status {
	var out []transaction.Status
	for _, c := range m.Calls() {
		if v, ok := c.Payload.(transaction.StatusView); ok {
			out = append(out, v.Status)
		}
	}
	return out
}

// --- Event Publisher Mock ---

// MockEventPublisher is a mock implementation of service.EventPublisher.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []transaction.Event

	PublishFunc func(ctx context.Context, event transaction.Event) error
}

func (m *MockEventPublisher) PublishTransactionEvent(ctx context.Context, event transaction.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

func (m *MockEventPublisher) Events() []transaction.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transaction.Event(nil), m.events...)
}

// --- Audit Repository Mock ---

// MockAuditRepository records appended events in memory.
type MockAuditRepository struct {
	mu        sync.Mutex
	events    []transaction.Event
	fulfilled map[string]bool

	AppendFunc func(ctx context.Context, streamID string, event transaction.Event) error
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{fulfilled: make(map[string]bool)}
}

func (m *MockAuditRepository) Append(ctx context.Context, streamID string, event transaction.Event) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, streamID, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// RecordFulfilment reports whether the order was newly recorded.
func (m *MockAuditRepository) RecordFulfilment(ctx context.Context, event transaction.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fulfilled[event.CheckoutID] {
		return false, nil
	}
	m.fulfilled[event.CheckoutID] = true
	return true, nil
}

func (m *MockAuditRepository) Events() []transaction.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transaction.Event(nil), m.events...)
}

func (m *MockAuditRepository) Fulfilled(checkoutID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fulfilled[checkoutID]
}

// --- helpers ---

// NewSTKPushResult builds the acknowledgement Daraja returns for an accepted push.
func NewSTKPushResult(checkoutID string) *providers.STKPushResult {
	raw := map[string]any{
		"MerchantRequestID":   "29115-34620561-1",
		"CheckoutRequestID":   checkoutID,
		"ResponseCode":        "0",
		"ResponseDescription": "Success. Request accepted for processing",
		"CustomerMessage":     "Success. Request accepted for processing",
	}
	return &providers.STKPushResult{
		MerchantRequestID:   "29115-34620561-1",
		CheckoutRequestID:   checkoutID,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
		Raw:                 raw,
	}
}

// CallbackBody builds a gateway callback body for checkoutID.
func CallbackBody(checkoutID string, resultCode int, resultDesc string) []byte {
	body, _ := json.Marshal(map[string]any{
		"Body": map[string]any{
			"stkCallback": map[string]any{
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": checkoutID,
				"ResultCode":        resultCode,
				"ResultDesc":        resultDesc,
			},
		},
	})
	return body
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs fn directly unless WithTransactionFunc is set.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Lock Mock ---

// MockLock is an in-process lock. Locks created by the same MockLocker
// share state by key.
type MockLock struct {
	locker *MockLocker
	key    string
	held   bool
}

func (l *MockLock) Acquire(ctx context.Context) (bool, error) {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.locker.AcquireErr != nil {
		return false, l.locker.AcquireErr
	}
	if l.locker.held[l.key] {
		return false, nil
	}
	l.locker.held[l.key] = true
	l.held = true
	return true, nil
}

func (l *MockLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.held {
		delete(l.locker.held, l.key)
		l.held = false
	}
	return nil
}

// MockLocker hands out MockLocks.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	AcquireErr error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) Lock(key string) *MockLock {
	return &MockLock{locker: m, key: key}
}

// Held reports whether key is currently locked.
func (m *MockLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}
