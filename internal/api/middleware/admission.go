package middleware

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/voxgate/voxgate/internal/admission"
	"github.com/voxgate/voxgate/pkg/models"
)

// Admission gates one route family behind the admission controller: the
// rate-limit quota is checked first, then a concurrency slot is taken for the
// duration of the request. Denials never block; they answer immediately with
// 429 (quota) or 503 (saturation) plus retry metadata.
func Admission(ctrl *admission.Controller, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ticket, err := ctrl.Admit(clientID(r), route)
			if err != nil {
				var denied *admission.DeniedError
				if errors.As(err, &denied) {
					writeDenied(w, r, route, denied)
					return
				}
				http.Error(w, "admission failed", http.StatusInternalServerError)
				return
			}
			defer ticket.Release()

			setAdmissionHeaders(w, ticket.Meta)
			next.ServeHTTP(w, r)
		})
	}
}

// clientID keys the quota. RemoteAddr is already rewritten by the RealIP
// middleware when the gateway runs behind a proxy.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setAdmissionHeaders(w http.ResponseWriter, meta admission.Meta) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(meta.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(meta.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(meta.ResetAt.Unix(), 10))
	h.Set("X-Concurrency-Limit", strconv.Itoa(meta.ConcurrencyLimit))
	h.Set("X-Concurrency-Active", strconv.Itoa(meta.ConcurrencyActive))
}

func writeDenied(w http.ResponseWriter, r *http.Request, route string, denied *admission.DeniedError) {
	setAdmissionHeaders(w, denied.Meta)

	retrySecs := int(denied.RetryAfter.Seconds())
	if retrySecs < 1 {
		retrySecs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retrySecs))

	status := http.StatusTooManyRequests
	code := models.CodeRateLimited
	message := "Request quota exhausted for this route. Retry after the window resets."
	if denied.Reason == admission.ReasonConcurrency {
		status = http.StatusServiceUnavailable
		code = models.CodeOverloaded
		message = "Too many requests in flight for this route. Retry shortly."
	}

	log.Warn().
		Str("route", route).
		Str("reason", denied.Reason).
		Str("client", clientID(r)).
		Int("retry_after_s", retrySecs).
		Msg("request denied by admission")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:             code,
		Message:           message,
		RequestID:         chimiddleware.GetReqID(r.Context()),
		RetryAfterSeconds: retrySecs,
	})
}
