package memory

import (
	"context"
	"testing"
	"time"

	"github.com/starkville/storefront/internal/domain/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_SetGet(t *testing.T) {
	s := NewIdempotencyStore()
	ctx := context.Background()

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now()
	require.NoError(t, s.Set(ctx, &idempotency.Entry{
		Key:            "k1",
		ResponseBody:   []byte(`{"success":true}`),
		ResponseStatus: 200,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}))

	got, err = s.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 200, got.ResponseStatus)
	assert.JSONEq(t, `{"success":true}`, string(got.ResponseBody))
}

func TestIdempotencyStore_Expiry(t *testing.T) {
	s := NewIdempotencyStore()
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, &idempotency.Entry{Key: "k1", ExpiresAt: now.Add(time.Minute)}))

	now = now.Add(2 * time.Minute)
	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdempotencyStore_Reserve(t *testing.T) {
	s := NewIdempotencyStore()
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must wait for the first")

	require.NoError(t, s.Release(ctx, "k1"))
	ok, err = s.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
