package middleware

import (
	"net/http"
	"testing"
	"time"

	redisStore "einvoice-dispatch/internal/adapter/storage/redis"
	"einvoice-dispatch/pkg/response"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(t *testing.T, rule RateLimitRule) *gin.Engine {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	store := redisStore.NewRateLimitStore(client)

	r := gin.New()
	r.GET("/limited", RateLimiter(store, "test", rule, zerolog.Nop()), func(c *gin.Context) {
		response.OK(c, gin.H{"ok": true})
	})
	return r
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	r := rateLimitedRouter(t, RateLimitRule{Limit: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		w := performRequest(r, http.MethodGet, "/limited", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	r := rateLimitedRouter(t, RateLimitRule{Limit: 2, Window: time.Minute})

	performRequest(r, http.MethodGet, "/limited", nil, nil)
	performRequest(r, http.MethodGet, "/limited", nil, nil)
	w := performRequest(r, http.MethodGet, "/limited", nil, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_001")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_SetsHeaders(t *testing.T) {
	r := rateLimitedRouter(t, RateLimitRule{Limit: 10, Window: time.Minute})

	w := performRequest(r, http.MethodGet, "/limited", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}
