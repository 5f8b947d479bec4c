package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"calorie-coach/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Config configures per-IP limiting for the public webhooks.
type Config struct {
	// Rate is requests per second per client IP.
	Rate  rate.Limit
	Burst int
	// MaxAge is how long an idle limiter is kept before Sweep evicts it.
	MaxAge time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	cfg     Config
	now     func() time.Time
}

func NewIPLimiter(cfg Config) *IPLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}
	return &IPLimiter{entries: map[string]*entry{}, cfg: cfg, now: time.Now}
}

func (l *IPLimiter) Allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than MaxAge.
func (l *IPLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.MaxAge)
	removed := 0
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

// Middleware answers 429 with Retry-After once a client IP exceeds its budget.
func Middleware(l *IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip) {
			logger.FromGin(c).Warn("rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
