package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/quickpay/internal/shared/logger"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRelayerLock_SingleHolder(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	a := NewRelayerLock(client, "", 10*time.Second, logger.NewNop())
	b := NewRelayerLock(client, "", 10*time.Second, logger.NewNop())
	require.NotEqual(t, a.Token(), b.Token())

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// renewing keeps the holder
	mr.FastForward(8 * time.Second)
	ok, err = a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	mr.FastForward(8 * time.Second)
	assert.True(t, mr.Exists(defaultRelayerLockKey))

	assert.ErrorIs(t, b.Release(ctx), ErrLockNotHeld)
	require.NoError(t, a.Release(ctx))

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRelayerLock_ExpiresWithoutRenewal(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	a := NewRelayerLock(client, "lock:test", time.Second, logger.NewNop())
	b := NewRelayerLock(client, "lock:test", time.Second, logger.NewNop())

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, a.Extend(ctx), ErrLockNotHeld)
}

func TestRelayerLock_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	_, err := NewRelayerLock(client, "", time.Second, logger.NewNop()).TryAcquire(context.Background())
	assert.Error(t, err)
}
