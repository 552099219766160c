package admission

import "sync"

// SlotPool bounds in-flight requests for one route family. Acquire is
// non-blocking: at capacity it rejects instead of queuing, so tail latency
// stays bounded.
type SlotPool struct {
	label    string
	capacity int

	mu     sync.Mutex
	active int
}

// NewSlotPool creates a pool with a fixed capacity. Capacity must be > 0.
func NewSlotPool(label string, capacity int) *SlotPool {
	if capacity <= 0 {
		capacity = 1
	}
	return &SlotPool{label: label, capacity: capacity}
}

// Acquire takes a slot if one is free. The returned release function is safe
// to call more than once; only the first call returns the slot.
func (p *SlotPool) Acquire() (release func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active >= p.capacity {
		return nil, false
	}
	p.active++

	var once sync.Once
	release = func() {
		once.Do(func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
		})
	}
	return release, true
}

// Active returns the current number of held slots.
func (p *SlotPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Capacity returns the configured slot count.
func (p *SlotPool) Capacity() int { return p.capacity }

// Label returns the route family this pool protects.
func (p *SlotPool) Label() string { return p.label }
