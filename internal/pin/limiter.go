package pin

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter caps PIN submissions per caller number, independently of
// CallLog.retries, so a caller cannot brute-force PINs across many calls.
//
// State is per process; with several replicas the effective limit is multiplied.
type AttemptLimiter struct {
	mu      sync.Mutex
	entries map[string]*attemptEntry
	limit   rate.Limit
	burst   int
	maxAge  time.Duration
	now     func() time.Time
}

type attemptEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter allows perMinute submissions per number with an equal burst.
func NewAttemptLimiter(perMinute int) *AttemptLimiter {
	if perMinute <= 0 {
		perMinute = 3
	}
	return &AttemptLimiter{
		entries: make(map[string]*attemptEntry),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		maxAge:  10 * time.Minute,
		now:     time.Now,
	}
}

// Allow consumes one attempt for phone.
func (l *AttemptLimiter) Allow(phone string) bool {
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[phone]
	if !ok {
		e = &attemptEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[phone] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Sweep drops entries idle for longer than maxAge. Run it periodically.
func (l *AttemptLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.maxAge)
	removed := 0
	for phone, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, phone)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("pin attempt limiter sweep", "removed", removed, "remaining", len(l.entries))
	}
}
