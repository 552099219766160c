package admission

import (
	"sync"
	"testing"
	"time"
)

func TestSlotPool_CapacityBound(t *testing.T) {
	p := NewSlotPool("transcribe", 2)

	r1, ok := p.Acquire()
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	r2, ok := p.Acquire()
	if !ok {
		t.Fatal("second acquire should succeed")
	}
	if _, ok := p.Acquire(); ok {
		t.Error("acquire at capacity should fail")
	}
	if p.Active() != 2 {
		t.Errorf("Active() = %d, want 2", p.Active())
	}

	r1()
	if p.Active() != 1 {
		t.Errorf("after release: Active() = %d, want 1", p.Active())
	}
	if _, ok := p.Acquire(); !ok {
		t.Error("acquire after release should succeed")
	}
	r2()
}

func TestSlotPool_ReleaseIdempotent(t *testing.T) {
	p := NewSlotPool("chat", 1)

	release, ok := p.Acquire()
	if !ok {
		t.Fatal("acquire should succeed")
	}
	release()
	release()
	release()

	if p.Active() != 0 {
		t.Errorf("Active() = %d after repeated release, want 0", p.Active())
	}
}

func TestSlotPool_ReleasedOnPanicPath(t *testing.T) {
	p := NewSlotPool("chat", 1)

	func() {
		defer func() { recover() }()
		release, ok := p.Acquire()
		if !ok {
			t.Fatal("acquire should succeed")
		}
		defer release()
		panic("handler blew up")
	}()

	if p.Active() != 0 {
		t.Errorf("Active() = %d after panic, want 0", p.Active())
	}
}

func TestSlotPool_InvariantUnderContention(t *testing.T) {
	p := NewSlotPool("synthesize", 6)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, ok := p.Acquire()
			if !ok {
				return
			}
			if a := p.Active(); a < 0 || a > p.Capacity() {
				t.Errorf("active = %d outside [0,%d]", a, p.Capacity())
			}
			time.Sleep(time.Millisecond)
			release()
		}()
	}
	wg.Wait()

	if p.Active() != 0 {
		t.Errorf("Active() = %d after all releases, want 0", p.Active())
	}
}

func TestController_AdmitAndDeny(t *testing.T) {
	c := NewController(map[string]RouteLimits{
		RouteTranscribe: {Requests: 2, Window: time.Minute, Concurrent: 1},
	})

	t1, err := c.Admit("10.0.0.1", RouteTranscribe)
	if err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}
	if t1.Meta.ConcurrencyActive != 1 || t1.Meta.ConcurrencyLimit != 1 {
		t.Errorf("meta concurrency = %d/%d, want 1/1", t1.Meta.ConcurrencyActive, t1.Meta.ConcurrencyLimit)
	}

	// Slot held: second request passes the rate check but hits the slot cap.
	_, err = c.Admit("10.0.0.1", RouteTranscribe)
	denied, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("second Admit() error = %v, want *DeniedError", err)
	}
	if denied.Reason != ReasonConcurrency {
		t.Errorf("Reason = %q, want %q", denied.Reason, ReasonConcurrency)
	}

	t1.Release()

	// Third request is over the rate budget (the denied one still counted).
	_, err = c.Admit("10.0.0.1", RouteTranscribe)
	denied, ok = err.(*DeniedError)
	if !ok {
		t.Fatalf("third Admit() error = %v, want *DeniedError", err)
	}
	if denied.Reason != ReasonRate {
		t.Errorf("Reason = %q, want %q", denied.Reason, ReasonRate)
	}
	if denied.Meta.Remaining != 0 {
		t.Errorf("denied Remaining = %d, want 0", denied.Meta.Remaining)
	}
}

func TestController_UnknownRouteConcurrentFirstUse(t *testing.T) {
	// The lazy pool for an unregistered route is created under contention;
	// all admissions must land on the same pool without a map race.
	c := NewController(map[string]RouteLimits{
		RouteChat: {Requests: 10, Window: time.Minute, Concurrent: 2},
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := c.Admit("10.0.0.1", "unregistered")
			if err != nil {
				return
			}
			if ticket.Meta.ConcurrencyLimit != 8 {
				t.Errorf("ConcurrencyLimit = %d, want the default 8", ticket.Meta.ConcurrencyLimit)
			}
			ticket.Release()
		}()
	}
	wg.Wait()

	if p := c.pool("unregistered", RouteLimits{Concurrent: 8}); p.Active() != 0 {
		t.Errorf("Active() = %d after all releases, want 0", p.Active())
	}
}
