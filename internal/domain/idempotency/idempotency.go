// Package idempotency defines the response cache behind the Idempotency-Key
// header on checkout routes.
package idempotency

import (
	"context"
	"time"
)

// Entry is a stored response replayed for a repeated key.
type Entry struct {
	Key            string    `json:"key"`
	ResponseBody   []byte    `json:"response_body"`
	ResponseStatus int       `json:"response_status"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Store persists idempotent responses.
type Store interface {
	// Get returns the entry for key, or nil when there is none.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores entry until entry.ExpiresAt.
	Set(ctx context.Context, entry *Entry) error
	// Reserve claims key for an in-flight request. It reports false when
	// another request holds the key.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops a reservation without storing a response.
	Release(ctx context.Context, key string) error
}
