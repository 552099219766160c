package admission

import (
	"fmt"
	"sync"
	"time"
)

// Route families with independent quotas. One noisy endpoint family cannot
// starve another's budget.
const (
	RouteChat       = "chat"
	RouteTranscribe = "transcribe"
	RouteSynthesize = "synthesize"
)

// RouteLimits configures one route family.
type RouteLimits struct {
	Requests   int           // per window
	Window     time.Duration // fixed window size
	Concurrent int           // in-flight cap
}

// Meta is the admission metadata exposed on every gated response so clients
// can tune their own backoff.
type Meta struct {
	Limit             int
	Remaining         int
	ResetAt           time.Time
	ConcurrencyLimit  int
	ConcurrencyActive int
}

// Denial reasons.
const (
	ReasonRate        = "rate_limit"
	ReasonConcurrency = "concurrency"
)

// DeniedError reports a rejected request together with the metadata the
// caller should surface as a retry hint.
type DeniedError struct {
	Reason     string
	Meta       Meta
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("admission denied (%s), retry after %s", e.Reason, e.RetryAfter)
}

// Ticket is a successful admission. Release must be called exactly once per
// ticket on every exit path; the underlying release is idempotent.
type Ticket struct {
	Meta    Meta
	release func()
}

// Release returns the concurrency slot.
func (t *Ticket) Release() {
	if t.release != nil {
		t.release()
	}
}

// Controller is the process-wide admission service. It is constructed once at
// startup and injected, so tests can substitute their own limits.
type Controller struct {
	limiter *RateLimiter
	limits  map[string]RouteLimits

	mu    sync.Mutex
	pools map[string]*SlotPool
}

// NewController builds a controller from per-route limits.
func NewController(limits map[string]RouteLimits) *Controller {
	c := &Controller{
		limiter: NewRateLimiter(),
		limits:  limits,
		pools:   make(map[string]*SlotPool, len(limits)),
	}
	for route, l := range limits {
		c.pools[route] = NewSlotPool(route, l.Concurrent)
	}
	return c
}

// Admit runs rate-limit then concurrency admission for one request. On
// success the returned ticket holds the slot; on failure the error is a
// *DeniedError carrying retry metadata.
func (c *Controller) Admit(clientID, route string) (*Ticket, error) {
	l, ok := c.limits[route]
	if !ok {
		// Unknown route family: a permissive default keeps the function total.
		l = RouteLimits{Requests: 60, Window: time.Minute, Concurrent: 8}
	}
	pool := c.pool(route, l)

	d := c.limiter.Check(clientID, route, l.Requests, l.Window)
	meta := Meta{
		Limit:            d.Limit,
		Remaining:        d.Remaining,
		ResetAt:          d.ResetAt,
		ConcurrencyLimit: pool.Capacity(),
	}

	if !d.Allowed {
		meta.ConcurrencyActive = pool.Active()
		retry := time.Until(d.ResetAt)
		if retry < 0 {
			retry = 0
		}
		return nil, &DeniedError{Reason: ReasonRate, Meta: meta, RetryAfter: retry}
	}

	release, ok := pool.Acquire()
	if !ok {
		meta.ConcurrencyActive = pool.Active()
		return nil, &DeniedError{Reason: ReasonConcurrency, Meta: meta, RetryAfter: time.Second}
	}

	meta.ConcurrencyActive = pool.Active()
	return &Ticket{Meta: meta, release: release}, nil
}

// pool returns the route's slot pool, creating it under the lock so
// concurrent first requests on an unregistered route stay safe.
func (c *Controller) pool(route string, l RouteLimits) *SlotPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[route]
	if !ok {
		p = NewSlotPool(route, l.Concurrent)
		c.pools[route] = p
	}
	return p
}
