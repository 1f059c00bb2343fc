package memory

import (
	"context"
	"sync"
	"time"

	"github.com/starkville/storefront/internal/domain/idempotency"
)

// IdempotencyStore implements idempotency.Store in process memory. It is used
// when no Redis instance is configured.
type IdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string]*idempotency.Entry
	reserved map[string]time.Time
	now      func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries:  make(map[string]*idempotency.Entry),
		reserved: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*idempotency.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.ExpiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	cp := *e
	cp.ResponseBody = append([]byte(nil), e.ResponseBody...)
	return &cp, nil
}

func (s *IdempotencyStore) Set(ctx context.Context, entry *idempotency.Entry) error {
	cp := *entry
	cp.ResponseBody = append([]byte(nil), entry.ResponseBody...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = &cp
	delete(s.reserved, entry.Key)
	return nil
}

func (s *IdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.reserved[key]; ok && now.Before(until) {
		return false, nil
	}
	s.reserved[key] = now.Add(ttl)
	return true, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.reserved, key)
	s.mu.Unlock()
	return nil
}
