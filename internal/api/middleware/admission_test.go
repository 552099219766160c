package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/admission"
	"github.com/voxgate/voxgate/internal/api/middleware"
	"github.com/voxgate/voxgate/pkg/models"
)

func newTestController(requests, concurrent int) *admission.Controller {
	return admission.NewController(map[string]admission.RouteLimits{
		admission.RouteChat: {Requests: requests, Window: time.Minute, Concurrent: concurrent},
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdmission_AllowsAndSetsHeaders(t *testing.T) {
	ctrl := newTestController(5, 2)
	handler := middleware.Admission(ctrl, admission.RouteChat)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "5")
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("X-RateLimit-Remaining = %q, want %q", got, "4")
	}
	if got := w.Header().Get("X-Concurrency-Limit"); got != "2" {
		t.Errorf("X-Concurrency-Limit = %q, want %q", got, "2")
	}
}

func TestAdmission_RateLimited(t *testing.T) {
	ctrl := newTestController(2, 4)
	handler := middleware.Admission(ctrl, admission.RouteChat)(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}

	var body models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Error != models.CodeRateLimited {
		t.Errorf("error code = %q, want %q", body.Error, models.CodeRateLimited)
	}
	if body.RetryAfterSeconds < 1 {
		t.Errorf("RetryAfterSeconds = %d, want >= 1", body.RetryAfterSeconds)
	}
}

func TestAdmission_IndependentClients(t *testing.T) {
	ctrl := newTestController(1, 4)
	handler := middleware.Admission(ctrl, admission.RouteChat)(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), first)

	// A different client keeps its own budget.
	second := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, second)

	if w.Code != http.StatusOK {
		t.Errorf("second client status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAdmission_ConcurrencyOverload(t *testing.T) {
	ctrl := newTestController(100, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})
	handler := middleware.Admission(ctrl, admission.RouteChat)(slow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-started

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.RemoteAddr = "10.0.0.2:5678"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body.Error != models.CodeOverloaded {
		t.Errorf("error code = %q, want %q", body.Error, models.CodeOverloaded)
	}

	close(release)
	wg.Wait()

	// Slot is back after the in-flight request finishes.
	again := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	again.RemoteAddr = "10.0.0.2:5678"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, again)
	if w2.Code != http.StatusOK {
		t.Errorf("after release status = %d, want %d", w2.Code, http.StatusOK)
	}
}
