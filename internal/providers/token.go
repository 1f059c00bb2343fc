package providers

import (
	"context"
	"sync"
	"time"
)

// tokenRefreshMargin is subtracted from the issued lifetime so a token is
// never presented in its last seconds.
const tokenRefreshMargin = 60 * time.Second

type fetchTokenFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// tokenSource hands out OAuth access tokens. With caching disabled every call
// fetches a fresh token.
type tokenSource struct {
	mu      sync.Mutex
	cache   bool
	fetch   fetchTokenFunc
	now     func() time.Time
	token   string
	expires time.Time
}

func newTokenSource(cache bool, fetch fetchTokenFunc, now func() time.Time) *tokenSource {
	return &tokenSource{cache: cache, fetch: fetch, now: now}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	if !s.cache {
		token, _, err := s.fetch(ctx)
		return token, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	token, ttl, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	if ttl > tokenRefreshMargin {
		ttl -= tokenRefreshMargin
	}
	s.token = token
	s.expires = s.now().Add(ttl)
	return token, nil
}

// Invalidate drops the cached token, e.g. after the gateway answers 401.
func (s *tokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expires = time.Time{}
	s.mu.Unlock()
}
