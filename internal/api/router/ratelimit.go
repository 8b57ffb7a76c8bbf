package router

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cuongbtq/batch-orchestrator/internal/api/dto"
	"github.com/cuongbtq/batch-orchestrator/internal/api/handler"
	"github.com/cuongbtq/batch-orchestrator/internal/auth"
)

const limiterIdleTTL = 5 * time.Minute

// ipLimiter holds a rate limiter and the last time it was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	ips       map[string]*ipLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows rps requests per second per IP with the given burst.
// A burst below one is raised to ceil(rps).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = int(rps)
		if float64(burst) < rps {
			burst++
		}
		if burst < 1 {
			burst = 1
		}
	}
	return &RateLimiter{
		ips:   make(map[string]*ipLimiter),
		rps:   rate.Limit(rps),
		burst: burst,
		now:   time.Now,
	}
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		rl.sweep(now)
	}

	l, ok := rl.ips[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// sweep drops limiters for IPs idle longer than limiterIdleTTL. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, l := range rl.ips {
		if l.lastSeen.Before(cutoff) {
			delete(rl.ips, ip)
		}
	}
	rl.lastSweep = now
}

// RateLimitMiddleware rejects requests over the per-IP budget with 429.
// A nil limiter makes it a no-op. Unauthorized requests pass through without
// spending tokens so the handler answers them with 401.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || !auth.IsAuthorized(c.Request.Context()) {
			c.Next()
			return
		}
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(handler.StatusFor(handler.CodeRateLimited), dto.ErrorResponse{
				Error: "rate limit exceeded, slow down",
				Code:  handler.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
