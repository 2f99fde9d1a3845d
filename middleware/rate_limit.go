package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiter
	limit    rate.Limit
	burst    int
}

// RateLimit applies a per client IP token bucket allowing perMinute requests a minute.
// Requests over the limit are handed to deny.
func RateLimit(perMinute int, deny gin.HandlerFunc) gin.HandlerFunc {
	l := &ipLimiters{
		limiters: map[string]*rateLimiter{},
		limit:    rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    max(perMinute/2, 1),
	}
	return func(ctx *gin.Context) {
		if !l.allow(ctx.ClientIP()) {
			deny(ctx)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func (l *ipLimiters) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for k, lim := range l.limiters {
		if now.After(lim.expires) {
			delete(l.limiters, k)
		}
	}
	lim, ok := l.limiters[key]
	if !ok {
		lim = &rateLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = lim
	}
	lim.expires = now.Add(5 * time.Minute)
	return lim.limiter.Allow()
}
