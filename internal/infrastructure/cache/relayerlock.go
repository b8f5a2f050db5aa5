package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/quickpay/internal/shared/logger"
)

const defaultRelayerLockKey = "quickpay:relayer:leader"

// ErrLockNotHeld is returned when releasing or extending a lock owned by someone else.
var ErrLockNotHeld = errors.New("relayer lock not held")

// extendScript refreshes the TTL only if the caller still owns the lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RelayerLock elects a single relayer across processes. The holder must renew
// before ttl elapses; a crashed holder's lock simply expires.
type RelayerLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger logger.Interface
}

func NewRelayerLock(client *redis.Client, key string, ttl time.Duration, log logger.Interface) *RelayerLock {
	if key == "" {
		key = defaultRelayerLockKey
	}
	return &RelayerLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
		logger: log,
	}
}

// TryAcquire takes the lock or renews it if this instance already holds it.
// It reports whether this instance is the holder afterwards.
func (l *RelayerLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire relayer lock: %w", err)
	}
	if ok {
		l.logger.Infow("relayer lock acquired", "key", l.key, "token", l.token)
		return true, nil
	}

	if err := l.Extend(ctx); err != nil {
		if errors.Is(err, ErrLockNotHeld) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *RelayerLock) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend relayer lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *RelayerLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release relayer lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	l.logger.Infow("relayer lock released", "key", l.key)
	return nil
}

func (l *RelayerLock) Token() string {
	return l.token
}
