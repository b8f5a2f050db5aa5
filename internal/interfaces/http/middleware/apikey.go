package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/utils"
)

const (
	apiKeyHeader = "X-API-Key"
	// ContextKeyAPIKeyIndex identifies which configured key authenticated the request.
	ContextKeyAPIKeyIndex = "api_key_index"
)

// APIKeyAuth accepts requests carrying one of keys in X-API-Key or as a Bearer
// token. With no keys configured every request passes.
func APIKeyAuth(keys []string, log logger.Interface) gin.HandlerFunc {
	configured := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			configured = append(configured, []byte(k))
		}
	}
	if len(configured) == 0 {
		log.Warnw("no API keys configured, API authentication disabled")
	}

	return func(c *gin.Context) {
		if len(configured) == 0 {
			c.Next()
			return
		}

		presented := extractAPIKey(c)
		if presented == "" {
			abortUnauthorized(c, "missing API key")
			return
		}

		// Compare against every key so timing does not reveal which one matched.
		match := -1
		for i, k := range configured {
			if subtle.ConstantTimeCompare([]byte(presented), k) == 1 && match < 0 {
				match = i
			}
		}
		if match < 0 {
			log.Warnw("invalid API key", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
			abortUnauthorized(c, "invalid API key")
			return
		}

		c.Set(ContextKeyAPIKeyIndex, match)
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader(apiKeyHeader); key != "" {
		return strings.TrimSpace(key)
	}
	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func abortUnauthorized(c *gin.Context, message string) {
	utils.ErrorResponseWithError(c, errors.NewUnauthorizedError(message))
	c.Abort()
}
