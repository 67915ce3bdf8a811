package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drytrack/drytrack-api/ratelimit"
)

func TestCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("request N+1 in the same window is rejected", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil, ratelimit.Config{
			Window: time.Minute,
			Max:    2,
		}, nil)

		first := limiter.Check(ctx, "client-a", "GET /webhooks")
		assert.True(t, first.Allowed)
		assert.Equal(t, 1, first.Remaining)

		second := limiter.Check(ctx, "client-a", "GET /webhooks")
		assert.True(t, second.Allowed)
		assert.Equal(t, 0, second.Remaining)

		third := limiter.Check(ctx, "client-a", "GET /webhooks")
		assert.False(t, third.Allowed)
		assert.Equal(t, 0, third.Remaining)
		assert.Greater(t, third.RetryAfterSeconds(), 0)
	})

	t.Run("windows are independent per client and endpoint", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil, ratelimit.Config{
			Window: time.Minute,
			Max:    1,
		}, nil)

		require.True(t, limiter.Check(ctx, "client-a", "GET /webhooks").Allowed)
		assert.False(t, limiter.Check(ctx, "client-a", "GET /webhooks").Allowed)

		// Different client, same endpoint
		assert.True(t, limiter.Check(ctx, "client-b", "GET /webhooks").Allowed)
		// Same client, different endpoint
		assert.True(t, limiter.Check(ctx, "client-a", "POST /webhooks/notify").Allowed)
	})

	t.Run("first request after window expiry is allowed", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil, ratelimit.Config{
			Window: 20 * time.Millisecond,
			Max:    1,
		}, nil)

		require.True(t, limiter.Check(ctx, "client-a", "GET /webhooks").Allowed)
		require.False(t, limiter.Check(ctx, "client-a", "GET /webhooks").Allowed)

		time.Sleep(30 * time.Millisecond)

		decision := limiter.Check(ctx, "client-a", "GET /webhooks")
		assert.True(t, decision.Allowed)
		assert.Equal(t, 0, decision.Remaining)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		limiter := ratelimit.NewLimiter(failingStore{}, nil, ratelimit.Config{
			Window: time.Minute,
			Max:    1,
		}, nil)

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Check(ctx, "client-a", "GET /webhooks").Allowed)
		}
	})

	t.Run("per-endpoint config overrides the default", func(t *testing.T) {
		limits := ratelimit.NewLimits()
		limits.Set("POST /webhooks/notify", ratelimit.Config{Window: time.Minute, Max: 5})

		limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), limits, ratelimit.Config{
			Window: time.Minute,
			Max:    1,
		}, nil)

		assert.Equal(t, 5, limiter.ConfigFor("POST /webhooks/notify").Max)
		assert.Equal(t, 1, limiter.ConfigFor("GET /webhooks").Max)
	})
}

func TestMemoryStorePurge(t *testing.T) {
	ctx := context.Background()
	store := ratelimit.NewMemoryStore()

	_, _, err := store.Incr(ctx, "a:ep", 10*time.Millisecond)
	require.NoError(t, err)
	_, _, err = store.Incr(ctx, "b:ep", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.Purge(ctx, time.Now()))

	// Only the expired window is dropped
	assert.Equal(t, 1, store.Len())
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("store unreachable")
}

func (failingStore) Purge(context.Context, time.Time) error {
	return errors.New("store unreachable")
}
