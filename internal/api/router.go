// Package api wires the HTTP routes and middleware of the gateway.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voxgate/voxgate/internal/admission"
	"github.com/voxgate/voxgate/internal/api/handlers"
	"github.com/voxgate/voxgate/internal/api/middleware"
	"github.com/voxgate/voxgate/internal/config"
)

// NewRouter creates the HTTP router with all API routes. Each conversational
// route family sits behind its own admission gate, so a burst of chat traffic
// cannot starve the voice endpoints.
func NewRouter(cfg *config.Config, h *handlers.Handlers, ctrl *admission.Controller) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)
	r.Use(auth.Middleware)

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.VersionInfo)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Admission(ctrl, admission.RouteChat)).
			Post("/chat", h.Chat)

		r.Route("/voice", func(r chi.Router) {
			r.With(middleware.Admission(ctrl, admission.RouteTranscribe)).
				Post("/transcriptions", h.Transcribe)
			r.With(middleware.Admission(ctrl, admission.RouteSynthesize)).
				Post("/speech", h.Speak)
		})
	})

	return r
}
