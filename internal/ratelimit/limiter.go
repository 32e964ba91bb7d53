// -----------------------------------------------------------------------
// Package ratelimit provides a fixed-window in-memory request limiter
// -----------------------------------------------------------------------

package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts requests per identity key inside a fixed window. State is
// process-local and resets on restart, which is acceptable: the limits
// protect the coordinator, they are not billing counters.
type Limiter struct {
	mu        sync.Mutex
	window    time.Duration
	entries   map[string]*entry
	lastPrune time.Time
	now       func() time.Time
}

type entry struct {
	count       int
	windowStart time.Time
}

// NewLimiter creates a limiter with the given window.
func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{
		window:  window,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Allow records one request for key and reports whether it fits inside the
// current window, along with the instant the window resets. A limit <= 0
// means unbounded.
func (l *Limiter) Allow(key string, limit int) (bool, time.Time) {
	if limit <= 0 {
		return true, time.Time{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	e, ok := l.entries[key]
	if !ok || now.Sub(e.windowStart) >= l.window {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}

	resetAt := e.windowStart.Add(l.window)
	if e.count >= limit {
		return false, resetAt
	}
	e.count++
	return true, resetAt
}

// pruneLocked drops expired entries at most once per window.
func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now

	for key, e := range l.entries {
		if now.Sub(e.windowStart) >= l.window {
			delete(l.entries, key)
		}
	}
}
