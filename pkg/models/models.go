// Package models defines the wire types of the VoxGate HTTP API.
package models

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the answer to a chat or transcription request.
type ChatResponse struct {
	RequestID  string `json:"request_id"`
	Answer     string `json:"answer"`
	Rounds     int    `json:"rounds"`
	ToolCalls  int    `json:"tool_calls"`
	Transcript string `json:"transcript,omitempty"`
}

// SpeechRequest is the body of POST /api/v1/voice/speech.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// ErrorResponse is the uniform error body. Error is a stable machine-readable
// code; Message is human-readable and never echoes rejected input verbatim.
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RequestID         string `json:"request_id,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// Error codes returned in ErrorResponse.Error.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeContentRejected = "content_rejected"
	CodeRateLimited     = "rate_limited"
	CodeOverloaded      = "overloaded"
	CodeUpstreamAuth    = "upstream_auth"
	CodeUpstreamTimeout = "upstream_timeout"
	CodeUpstreamError   = "upstream_error"
	CodeInternal        = "internal_error"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}
