package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSource_RefreshesAfterExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	src := newTokenSource(true, func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok", 2 * time.Minute, nil
	}, func() time.Time { return now })

	_, err := src.Token(context.Background())
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Lifetime is shortened by the refresh margin.
	now = now.Add(31 * time.Second)
	_, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTokenSource_Invalidate(t *testing.T) {
	calls := 0
	src := newTokenSource(true, func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok", time.Hour, nil
	}, time.Now)

	_, _ = src.Token(context.Background())
	src.Invalidate()
	_, _ = src.Token(context.Background())

	assert.Equal(t, 2, calls)
}

func TestTokenSource_ErrorNotCached(t *testing.T) {
	fail := true
	src := newTokenSource(true, func(ctx context.Context) (string, time.Duration, error) {
		if fail {
			return "", 0, errors.New("down")
		}
		return "tok", time.Hour, nil
	}, time.Now)

	_, err := src.Token(context.Background())
	assert.Error(t, err)

	fail = false
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}
