// Package server provides the public entry point for initializing the
// VoxGate gateway.
//
// This package exists in pkg/ (not internal/) so embedders can compose the
// gateway with their own middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voxgate/voxgate/internal/admission"
	"github.com/voxgate/voxgate/internal/api"
	"github.com/voxgate/voxgate/internal/api/handlers"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/dbquery"
	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/safety"
	"github.com/voxgate/voxgate/internal/speech"
	"github.com/voxgate/voxgate/internal/telemetry"
)

// Server holds the initialized VoxGate gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry
	// and close the database pool.
	ShutdownFunc func(context.Context) error
}

// New initializes all gateway components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	telemetryShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	db, err := dbquery.NewPGClient(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	executor := dbquery.NewExecutor(db, cfg.Database.MaxRows)

	ai := openai.NewClient(cfg.OpenAI.APIKey)
	gate := safety.NewGate(safety.NewOpenAIModerator(ai))
	orch := orchestrator.New(ai, executor, cfg.OpenAI.Model,
		orchestrator.WithMaxRounds(cfg.OpenAI.MaxRounds))
	voice := speech.New(ai, cfg.OpenAI.Timeout)

	ctrl := admission.NewController(map[string]admission.RouteLimits{
		admission.RouteChat: {
			Requests:   cfg.Admission.Chat.Requests,
			Window:     cfg.Admission.Chat.Window,
			Concurrent: cfg.Admission.Chat.Concurrent,
		},
		admission.RouteTranscribe: {
			Requests:   cfg.Admission.Transcribe.Requests,
			Window:     cfg.Admission.Transcribe.Window,
			Concurrent: cfg.Admission.Transcribe.Concurrent,
		},
		admission.RouteSynthesize: {
			Requests:   cfg.Admission.Synthesize.Requests,
			Window:     cfg.Admission.Synthesize.Window,
			Concurrent: cfg.Admission.Synthesize.Concurrent,
		},
	})

	h := handlers.New(gate, orch, voice, db, cfg.Version, cfg.OpenAI.Voice)
	router := api.NewRouter(cfg, h, ctrl)

	log.Info().
		Str("model", cfg.OpenAI.Model).
		Int("max_rounds", cfg.OpenAI.MaxRounds).
		Msg("gateway initialized")

	shutdown := func(ctx context.Context) error {
		db.Close()
		return telemetryShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
