package ratelimit

import (
	"context"
	"time"
)

// RateLimitConfig sets request ceilings per sliding window. Zero disables a window.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, config RateLimitConfig) (bool, error)
	GetUsage(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// KeyedLimiter binds a RateLimiter to one fixed config.
type KeyedLimiter struct {
	limiter RateLimiter
	config  RateLimitConfig
}

func NewKeyedLimiter(limiter RateLimiter, config RateLimitConfig) *KeyedLimiter {
	return &KeyedLimiter{limiter: limiter, config: config}
}

func (k *KeyedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return k.limiter.Allow(ctx, key, k.config)
}
