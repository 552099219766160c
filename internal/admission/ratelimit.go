// Package admission implements request admission control for the gateway:
// fixed-window rate limiting per (client, route family) and bounded
// concurrency slots per route family. Both fail fast — a denied request is
// rejected with retry metadata instead of being queued.
package admission

import (
	"sync"
	"time"
)

// pruneEvery bounds how often expired windows are swept from memory.
const pruneEvery = 5 * time.Minute

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count int
	start time.Time
	size  time.Duration
}

// RateLimiter counts requests in fixed windows keyed by (client, route).
// It never fails; it only classifies.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastPrune time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates an empty fixed-window rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check records one request for the given client and route and decides
// whether it fits within the window. Windows are created lazily and reset
// in place once their duration has elapsed.
func (rl *RateLimiter) Check(clientID, route string, limit int, size time.Duration) Decision {
	key := clientID + "|" + route

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(now)

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= w.size {
		w = &window{count: 1, start: now, size: size}
		rl.windows[key] = w
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(0, limit-1),
			ResetAt:   w.start.Add(size),
		}
	}

	w.count++
	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.start.Add(w.size),
	}
}

// pruneLocked drops expired windows so the map stays bounded. Callers must
// hold rl.mu.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < pruneEvery {
		return
	}
	rl.lastPrune = now
	for key, w := range rl.windows {
		if now.Sub(w.start) >= w.size {
			delete(rl.windows, key)
		}
	}
}
