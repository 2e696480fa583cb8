package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/shieldsup/config"
	"github.com/use-agent/shieldsup/models"
)

const (
	limiterIdle  = time.Hour
	limiterSweep = 5 * time.Minute
)

// clientLimiters holds one token bucket per client IP.
type clientLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	*rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	return &clientLimiters{
		rps:     rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		buckets: make(map[string]*bucket),
	}
}

func (l *clientLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.AllowN(now, 1)
}

// sweep drops buckets idle since before cutoff and returns how many remain.
func (l *clientLimiters) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
	return len(l.buckets)
}

// RateLimit returns per-client-IP token-bucket rate limiting for page
// renders. A non-positive rate disables limiting.
//
// Buckets idle for an hour are dropped by a background sweep.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newClientLimiters(cfg)
	go func() {
		ticker := time.NewTicker(limiterSweep)
		defer ticker.Stop()
		for now := range ticker.C {
			limiters.sweep(now.Add(-limiterIdle))
		}
	}()

	return func(c *gin.Context) {
		if limiters.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error: &models.ErrorDetail{
				Code:    models.ErrCodeRateLimited,
				Message: "too many proxied requests from this client",
			},
		})
	}
}
