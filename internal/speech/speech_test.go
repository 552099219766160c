package speech_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxgate/voxgate/internal/speech"
)

type fakeAudio struct {
	transcript string
	err        error
	delay      time.Duration
	speechCtx  context.Context
}

// ctxReader fails reads once its context is done, like a real HTTP response
// body bound to the request context.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func (c *ctxReader) Close() error { return nil }

func (f *fakeAudio) CreateTranscription(ctx context.Context, _ openai.AudioRequest) (openai.AudioResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return openai.AudioResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return openai.AudioResponse{}, f.err
	}
	return openai.AudioResponse{Text: f.transcript}, nil
}

func (f *fakeAudio) CreateSpeech(ctx context.Context, _ openai.CreateSpeechRequest) (openai.RawResponse, error) {
	if f.err != nil {
		return openai.RawResponse{}, f.err
	}
	f.speechCtx = ctx
	return openai.RawResponse{ReadCloser: &ctxReader{ctx: ctx, r: strings.NewReader("mp3-bytes")}}, nil
}

func TestTranscribe_ReturnsText(t *testing.T) {
	svc := speech.New(&fakeAudio{transcript: "Wie ist der Preis von Beton?"}, time.Second)

	text, err := svc.Transcribe(context.Background(), "frage.webm", bytes.NewReader([]byte("audio")))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "Wie ist der Preis von Beton?" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribe_TimeoutClassified(t *testing.T) {
	svc := speech.New(&fakeAudio{delay: time.Second}, 10*time.Millisecond)

	_, err := svc.Transcribe(context.Background(), "frage.webm", bytes.NewReader(nil))
	var ue *speech.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Kind != speech.KindTimeout {
		t.Errorf("Kind = %q, want %q", ue.Kind, speech.KindTimeout)
	}
}

func TestTranscribe_AuthClassified(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}
	svc := speech.New(&fakeAudio{err: apiErr}, time.Second)

	_, err := svc.Transcribe(context.Background(), "frage.webm", bytes.NewReader(nil))
	var ue *speech.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Kind != speech.KindAuth {
		t.Errorf("Kind = %q, want %q", ue.Kind, speech.KindAuth)
	}
}

func TestSynthesize_TransientClassified(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 500, Message: "upstream hiccup"}
	svc := speech.New(&fakeAudio{err: apiErr}, time.Second)

	_, err := svc.Synthesize(context.Background(), "Hallo", "")
	var ue *speech.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Kind != speech.KindTransient {
		t.Errorf("Kind = %q, want %q", ue.Kind, speech.KindTransient)
	}
}

func TestSynthesize_StreamsAudio(t *testing.T) {
	svc := speech.New(&fakeAudio{}, time.Second)

	rc, err := svc.Synthesize(context.Background(), "Hallo Welt", "nova")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "mp3-bytes" {
		t.Errorf("audio = %q", data)
	}
}

func TestSynthesize_StreamOutlivesCall(t *testing.T) {
	fake := &fakeAudio{}
	svc := speech.New(fake, time.Second)

	rc, err := svc.Synthesize(context.Background(), "Hallo Welt", "nova")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	// Reads after Synthesize has returned must still succeed; the body is
	// bound to the call's timeout context.
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading after return: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("audio = %q", data)
	}

	if err := rc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Close must release the context so it cannot leak.
	if fake.speechCtx.Err() == nil {
		t.Error("timeout context not released after Close")
	}
}
