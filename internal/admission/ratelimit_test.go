package admission

import (
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter()

	const limit = 5
	for i := 1; i <= limit; i++ {
		d := rl.Check("10.0.0.1", "chat", limit, time.Minute)
		if !d.Allowed {
			t.Fatalf("request %d: Allowed = false, want true", i)
		}
		if d.Remaining != limit-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, d.Remaining, limit-i)
		}
	}

	d := rl.Check("10.0.0.1", "chat", limit, time.Minute)
	if d.Allowed {
		t.Error("request over limit: Allowed = true, want false")
	}
	if d.Remaining != 0 {
		t.Errorf("request over limit: Remaining = %d, want 0", d.Remaining)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	d := rl.Check("c", "chat", 1, time.Minute)
	if !d.Allowed {
		t.Fatal("first request should be allowed")
	}
	if got, want := d.ResetAt, now.Add(time.Minute); !got.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", got, want)
	}

	if d := rl.Check("c", "chat", 1, time.Minute); d.Allowed {
		t.Error("second request in same window should be denied")
	}

	// Advance past the window; the counter starts fresh.
	now = now.Add(time.Minute)
	if d := rl.Check("c", "chat", 1, time.Minute); !d.Allowed {
		t.Error("request in fresh window should be allowed")
	}
}

func TestRateLimiter_IndependentKeys(t *testing.T) {
	rl := NewRateLimiter()

	rl.Check("a", "transcribe", 1, time.Minute)
	if d := rl.Check("a", "transcribe", 1, time.Minute); d.Allowed {
		t.Error("same client+route should share a window")
	}

	// Different route family: separate quota.
	if d := rl.Check("a", "synthesize", 1, time.Minute); !d.Allowed {
		t.Error("different route should have its own window")
	}
	// Different client: separate quota.
	if d := rl.Check("b", "transcribe", 1, time.Minute); !d.Allowed {
		t.Error("different client should have its own window")
	}
}

func TestRateLimiter_ConcurrentChecks(t *testing.T) {
	rl := NewRateLimiter()
	const limit = 50
	const attempts = 200

	var wg sync.WaitGroup
	allowed := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- rl.Check("c", "chat", limit, time.Hour).Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	if count != limit {
		t.Errorf("allowed %d requests, want exactly %d", count, limit)
	}
}

func TestRateLimiter_PrunesExpiredWindows(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for _, id := range []string{"a", "b", "c"} {
		rl.Check(id, "chat", 10, time.Minute)
	}
	if len(rl.windows) != 3 {
		t.Fatalf("windows = %d, want 3", len(rl.windows))
	}

	now = now.Add(pruneEvery + time.Minute)
	rl.Check("d", "chat", 10, time.Minute)
	if len(rl.windows) != 1 {
		t.Errorf("after prune: windows = %d, want 1", len(rl.windows))
	}
}
