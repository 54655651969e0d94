// Package ratelimit provides sliding-window rate limiting for the security engine.
//
// Unlike a token bucket, a sliding window keeps the actual event timestamps,
// so a denied caller can be told exactly how long until the oldest event
// leaves the window. Limits and windows are supplied per call, which lets one
// limiter serve the whole per-operation-category rate table.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// sweepInterval is how often Allow opportunistically purges stale keys.
const sweepInterval = time.Minute

// staleAfter is how old a key's newest timestamp must be before the sweep
// drops the key entirely.
const staleAfter = time.Hour

// Limiter tracks event timestamps per key in sliding windows.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time // swappable for tests
}

// New creates a new sliding-window limiter.
func New() *Limiter {
	return &Limiter{
		windows:   make(map[string][]time.Time),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether one more event is permitted for key within the
// given limit per window. On success the event is recorded; on denial the
// window is left untouched.
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > sweepInterval {
		l.sweepLocked(now)
		l.lastSweep = now
	}

	ts := l.pruneLocked(key, now, window)
	if len(ts) < limit {
		l.windows[key] = append(ts, now)
		return true
	}
	l.windows[key] = ts
	return false
}

// RemainingCooldown returns how long until the next event would be allowed
// for key. Zero when the window is under capacity.
func (l *Limiter) RemainingCooldown(key string, limit int, window time.Duration) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ts := l.pruneLocked(key, now, window)
	l.windows[key] = ts
	if len(ts) < limit {
		return 0
	}

	oldest := ts[0]
	remaining := window - now.Sub(oldest)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// pruneLocked drops timestamps older than the window for one key.
// Timestamps are appended in order, so the slice stays sorted and the
// first surviving entry is the oldest.
func (l *Limiter) pruneLocked(key string, now time.Time, window time.Duration) []time.Time {
	ts := l.windows[key]
	cutoff := now.Add(-window)
	start := 0
	for start < len(ts) && !ts[start].After(cutoff) {
		start++
	}
	return ts[start:]
}

// sweepLocked removes keys whose newest timestamp is older than staleAfter,
// bounding memory across many short-lived keys.
func (l *Limiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for key, ts := range l.windows {
		if len(ts) == 0 || ts[len(ts)-1].Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// keys returns the number of tracked keys. Used by the sweep tests.
func (l *Limiter) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Middleware returns a gin middleware that rate limits API calls by client
// IP (or API key when present) against the given per-minute limit.
func (l *Limiter) Middleware(requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if apiKey := c.GetHeader("Authorization"); apiKey != "" {
			key = "auth:" + apiKey[:min(20, len(apiKey))]
		}

		if !l.Allow(key, requestsPerMinute, time.Minute) {
			retry := l.RemainingCooldown(key, requestsPerMinute, time.Minute)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": int(retry.Seconds()) + 1,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
