package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/heistctf/config"
	"github.com/cppla/heistctf/utils"
)

const limiterIdleTTL = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet holds one token bucket per key. Each middleware owns its own set
// so a key's budget on one route never drains another route's.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newLimiterSet(perMinute int) *limiterSet {
	perMinute = max(perMinute, 1)
	return &limiterSet{
		limiters: make(map[string]*rateLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		now:      time.Now,
	}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, l := range s.limiters {
		if now.After(l.expires) {
			delete(s.limiters, k)
		}
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(limiterIdleTTL)
	return l.limiter.AllowN(now, 1)
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(ctx *gin.Context) string

// ByClientIP charges requests to the caller's address.
func ByClientIP(ctx *gin.Context) string {
	return "ip:" + ctx.ClientIP()
}

// ByUser charges requests to the authenticated user, falling back to the
// address before AuthRequired has run.
func ByUser(ctx *gin.Context) string {
	if id, ok := CurrentUserID(ctx); ok {
		return fmt.Sprintf("user:%d", id)
	}
	return ByClientIP(ctx)
}

// KeyedRateLimit allows perMinute requests per key with a burst of half that.
func KeyedRateLimit(perMinute int, key KeyFunc) gin.HandlerFunc {
	set := newLimiterSet(perMinute)
	return func(ctx *gin.Context) {
		if !set.allow(key(ctx)) {
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// RateLimitMiddleware applies the configured per-IP limit.
func RateLimitMiddleware() gin.HandlerFunc {
	return KeyedRateLimit(config.Get().RateLimitPerMinute, ByClientIP)
}
