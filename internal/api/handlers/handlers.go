// Package handlers implements the HTTP handlers of the VoxGate gateway.
// Every conversational route runs the same pipeline: decode → content gate →
// orchestrate → respond. Rejected input is never echoed back verbatim.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/safety"
	"github.com/voxgate/voxgate/internal/speech"
	"github.com/voxgate/voxgate/pkg/models"
)

// maxAudioBytes caps uploaded audio at 25 MB, the transcription upstream's own
// file limit.
const maxAudioBytes = 25 << 20

const maxSpeechChars = 4096

type contentGate interface {
	Evaluate(ctx context.Context, texts []string) (*safety.Finding, error)
}

type answerer interface {
	Answer(ctx context.Context, question string) (*orchestrator.Result, error)
}

type speechService interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
	Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Gate         contentGate
	Orchestrator answerer
	Speech       speechService
	DB           pinger
	Version      string
	Voice        string
}

// New creates a Handlers instance.
func New(gate contentGate, orch answerer, sp speechService, db pinger, version, voice string) *Handlers {
	return &Handlers{
		Gate:         gate,
		Orchestrator: orch,
		Speech:       sp,
		DB:           db,
		Version:      version,
		Voice:        voice,
	}
}

// Chat answers one text question.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, "message must not be empty")
		return
	}

	if !h.admitContent(w, r, req.Message) {
		return
	}

	result, err := h.Orchestrator.Answer(r.Context(), req.Message)
	if err != nil {
		h.respondUpstreamError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.ChatResponse{
		RequestID: requestID(r),
		Answer:    result.Answer,
		Rounds:    result.Rounds,
		ToolCalls: result.ToolCalls,
	})
}

// Transcribe accepts a multipart audio upload, transcribes it and answers the
// transcript like a chat message.
func (h *Handlers) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, `multipart field "audio" is required`)
		return
	}
	defer file.Close()

	transcript, err := h.Speech.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		h.respondUpstreamError(w, r, err)
		return
	}
	if strings.TrimSpace(transcript) == "" {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, "audio contained no recognizable speech")
		return
	}

	if !h.admitContent(w, r, transcript) {
		return
	}

	result, err := h.Orchestrator.Answer(r.Context(), transcript)
	if err != nil {
		h.respondUpstreamError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, models.ChatResponse{
		RequestID:  requestID(r),
		Answer:     result.Answer,
		Rounds:     result.Rounds,
		ToolCalls:  result.ToolCalls,
		Transcript: transcript,
	})
}

// Speak converts text to speech and streams the audio back.
func (h *Handlers) Speak(w http.ResponseWriter, r *http.Request) {
	var req models.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, "text must not be empty")
		return
	}
	if len(req.Text) > maxSpeechChars {
		respondError(w, r, http.StatusBadRequest, models.CodeBadRequest, "text exceeds the synthesis length limit")
		return
	}

	if !h.admitContent(w, r, req.Text) {
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = h.Voice
	}

	audio, err := h.Speech.Synthesize(r.Context(), req.Text, voice)
	if err != nil {
		h.respondUpstreamError(w, r, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil {
		log.Warn().Err(err).Msg("speech stream interrupted")
	}
}

// Health reports service and database status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{Status: "healthy", Database: "ok"}
	status := http.StatusOK

	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, status, resp)
}

// VersionInfo reports the build version.
func (h *Handlers) VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.VersionResponse{
		Version: h.Version,
		Service: "voxgate",
	})
}

// admitContent runs the safety gate over one text. Returns false after
// writing the refusal. A gate infrastructure failure closes the gate.
func (h *Handlers) admitContent(w http.ResponseWriter, r *http.Request, text string) bool {
	finding, err := h.Gate.Evaluate(r.Context(), []string{text})
	if err != nil {
		log.Error().Err(err).Msg("content gate unavailable")
		respondError(w, r, http.StatusServiceUnavailable, models.CodeOverloaded, "Content screening is unavailable. Try again shortly.")
		return false
	}
	if finding.Flagged {
		kinds := make([]string, 0, len(finding.Matches))
		for _, m := range finding.Matches {
			kinds = append(kinds, string(m.Kind))
		}
		log.Warn().Strs("kinds", kinds).Str("preview", preview(safety.Scrub(text))).Msg("request rejected by content gate")
		respondError(w, r, http.StatusUnprocessableEntity, models.CodeContentRejected,
			"The request contains personal data or disallowed content and was not processed.")
		return false
	}
	return true
}

func (h *Handlers) respondUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var ue *speech.UpstreamError
	if errors.As(err, &ue) {
		switch ue.Kind {
		case speech.KindAuth:
			log.Error().Err(err).Msg("upstream credentials rejected")
			respondError(w, r, http.StatusInternalServerError, models.CodeUpstreamAuth, "The service is misconfigured. Contact the operator.")
		case speech.KindTimeout:
			respondError(w, r, http.StatusGatewayTimeout, models.CodeUpstreamTimeout, "The upstream call timed out. Try again.")
		default:
			respondError(w, r, http.StatusBadGateway, models.CodeUpstreamError, "The upstream service failed. Try again shortly.")
		}
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		respondError(w, r, http.StatusGatewayTimeout, models.CodeUpstreamTimeout, "The request timed out. Try again.")
		return
	}

	log.Error().Err(err).Msg("request failed")
	respondError(w, r, http.StatusBadGateway, models.CodeUpstreamError, "The request could not be completed. Try again shortly.")
}

// preview shortens scrubbed text for logging.
func preview(s string) string {
	const limit = 80
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

// requestID returns the router-assigned request ID, minting one when the
// handler runs outside the middleware chain.
func requestID(r *http.Request) string {
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, status, models.ErrorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID(r),
	})
}
