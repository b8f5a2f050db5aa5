package cache

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

const (
	defaultSessionCacheSize = 10000
	defaultSessionCacheTTL  = 30 * time.Second
)

// SessionCache fronts the session store on the submit path. Concurrent misses for
// one session share a single store read. Quota checks never consult the cache.
type SessionCache struct {
	store  session.Store
	lru    *expirable.LRU[common.Hash, *session.Session]
	group  singleflight.Group
	logger logger.Interface
}

func NewSessionCache(store session.Store, size int, ttl time.Duration, log logger.Interface) *SessionCache {
	if size <= 0 {
		size = defaultSessionCacheSize
	}
	if ttl <= 0 {
		ttl = defaultSessionCacheTTL
	}
	return &SessionCache{
		store:  store,
		lru:    expirable.NewLRU[common.Hash, *session.Session](size, nil, ttl),
		logger: log,
	}
}

func (c *SessionCache) Get(ctx context.Context, id common.Hash) (*session.Session, error) {
	if s, ok := c.lru.Get(id); ok {
		return s.Clone(), nil
	}

	v, err, _ := c.group.Do(id.Hex(), func() (interface{}, error) {
		s, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		c.lru.Add(id, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session).Clone(), nil
}

func (c *SessionCache) Invalidate(id common.Hash) {
	if c.lru.Remove(id) {
		c.logger.Debugw("session cache entry invalidated", "session_id", id.Hex())
	}
}

func (c *SessionCache) Len() int {
	return c.lru.Len()
}
