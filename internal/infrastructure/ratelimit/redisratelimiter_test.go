package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		allowed int
	}{
		{"per minute", RateLimitConfig{RequestsPerMinute: 5}, 5},
		{"per hour", RateLimitConfig{RequestsPerHour: 3}, 3},
		{"tightest window wins", RateLimitConfig{RequestsPerMinute: 10, RequestsPerDay: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupTestRedis(t)
			limiter := NewRedisRateLimiter(client)
			ctx := context.Background()

			for i := 0; i < tt.allowed; i++ {
				ok, err := limiter.Allow(ctx, "key", tt.config)
				require.NoError(t, err)
				assert.True(t, ok, "request %d should be allowed", i+1)
			}

			ok, err := limiter.Allow(ctx, "key", tt.config)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisRateLimiter(client)
	ctx := context.Background()

	current := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }
	cfg := RateLimitConfig{RequestsPerMinute: 2}

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "session", cfg)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "session", cfg)
	require.NoError(t, err)
	assert.False(t, ok)

	current = current.Add(61 * time.Second)
	ok, err = limiter.Allow(ctx, "session", cfg)
	require.NoError(t, err)
	assert.True(t, ok)

	used, err := limiter.GetUsage(ctx, "session", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
}

func TestRedisRateLimiter_KeysAreIndependentAndResettable(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewKeyedLimiter(NewRedisRateLimiter(client), RateLimitConfig{RequestsPerMinute: 1})
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = limiter.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, limiter.limiter.Reset(ctx, "a"))
	ok, err = limiter.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	_, err := NewRedisRateLimiter(client).Allow(context.Background(), "k", RateLimitConfig{RequestsPerMinute: 1})
	assert.Error(t, err)
}
