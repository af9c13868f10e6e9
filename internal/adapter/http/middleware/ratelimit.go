package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "einvoice-dispatch/internal/adapter/storage/redis"
	"einvoice-dispatch/pkg/apperror"
	"einvoice-dispatch/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the per-endpoint-group limits. The documents
// limit is the configurable per-key one; the rest are fixed operational caps.
func DefaultRateLimitRules(documentsPerMinute int64) map[string]RateLimitRule {
	if documentsPerMinute <= 0 {
		documentsPerMinute = 120
	}
	return map[string]RateLimitRule{
		"documents":  {Limit: documentsPerMinute, Window: time.Minute},
		"auth_token": {Limit: 10, Window: time.Minute},
		"reads":      {Limit: 300, Window: time.Minute},
		"webhooks":   {Limit: 30, Window: time.Minute},
		"credits":    {Limit: 30, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source: the authenticated
// API key when present, the client IP otherwise.
func extractIdentifier(c *gin.Context) string {
	if ak, exists := c.Get(CtxAPIKey); exists {
		return fmt.Sprintf("%v", ak)
	}
	return c.ClientIP()
}
