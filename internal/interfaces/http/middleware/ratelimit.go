package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/utils"
)

// IPRateLimiter is a Redis fixed-window counter per client IP, shared by all
// API instances. Per-session limits on submit are enforced separately.
type IPRateLimiter struct {
	redisClient *redis.Client
	limit       int
	window      time.Duration
	logger      logger.Interface
}

func NewIPRateLimiter(redisClient *redis.Client, limit int, window time.Duration, log logger.Interface) *IPRateLimiter {
	if window < time.Second {
		window = time.Minute
	}
	return &IPRateLimiter{
		redisClient: redisClient,
		limit:       limit,
		window:      window,
		logger:      log,
	}
}

// Limit rejects requests over the limit with 429. Redis outages let traffic through.
func (rl *IPRateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		windowBucket := time.Now().Unix() / int64(rl.window.Seconds())
		key := fmt.Sprintf("ratelimit:ip:%s:%d", c.ClientIP(), windowBucket)
		ctx := c.Request.Context()

		count, err := rl.redisClient.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warnw("ip rate limit check failed, allowing request", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			rl.redisClient.Expire(ctx, key, rl.window+time.Second)
		}

		if count > int64(rl.limit) {
			utils.ErrorResponseWithError(c,
				errors.NewTooManyRequestsError("rate limit exceeded, please try again later").
					WithReason(errors.ReasonRateLimited))
			c.Abort()
			return
		}

		c.Next()
	}
}
