// Package speech wraps the transcription and synthesis upstreams. Every call
// is bounded by an explicit timeout, and failures are classified so callers
// can tell an operator misconfiguration from a retryable blip.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds one upstream speech call.
const DefaultTimeout = 30 * time.Second

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindTransient ErrorKind = "transient"
)

// UpstreamError wraps a classified upstream failure.
type UpstreamError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream %s: %v", e.Op, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// audioAPI is the slice of the OpenAI client the service needs.
type audioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Service performs speech-to-text and text-to-speech.
type Service struct {
	client  audioAPI
	timeout time.Duration
}

// New creates a speech service. timeout <= 0 falls back to DefaultTimeout.
func New(client audioAPI, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{client: client, timeout: timeout}
}

// Transcribe converts one audio stream to text.
func (s *Service) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", classify("transcription", err)
	}
	return resp.Text, nil
}

// Synthesize converts text to an audio stream. The caller owns the returned
// reader and must close it. The timeout context must outlive the returned
// stream, so it is released on Close rather than on return.
func (s *Service) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          speechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		cancel()
		return nil, classify("synthesis", err)
	}
	return &audioStream{ReadCloser: resp, cancel: cancel}, nil
}

// audioStream ties the lifetime of the synthesis timeout context to the
// response body.
type audioStream struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (s *audioStream) Close() error {
	err := s.ReadCloser.Close()
	s.cancel()
	return err
}

func speechVoice(voice string) openai.SpeechVoice {
	switch voice {
	case "nova":
		return openai.VoiceNova
	case "onyx":
		return openai.VoiceOnyx
	case "shimmer":
		return openai.VoiceShimmer
	default:
		return openai.VoiceAlloy
	}
}

// classify distinguishes timeout, auth and transient failures. Auth failures
// mean server misconfiguration and must stay distinguishable for operators.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Kind: KindTimeout, Op: op, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &UpstreamError{Kind: KindAuth, Op: op, Err: err}
		}
	}
	return &UpstreamError{Kind: KindTransient, Op: op, Err: err}
}
