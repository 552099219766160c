package safety

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// moderationAPI is the slice of the OpenAI client the moderator needs.
type moderationAPI interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// OpenAIModerator delegates classification to the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client moderationAPI
}

// NewOpenAIModerator wraps an OpenAI client as a Moderator.
func NewOpenAIModerator(client moderationAPI) *OpenAIModerator {
	return &OpenAIModerator{client: client}
}

// Flagged classifies each text independently and returns one boolean per
// input, in order.
func (m *OpenAIModerator) Flagged(ctx context.Context, texts []string) ([]bool, error) {
	flags := make([]bool, len(texts))
	for i, text := range texts {
		resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
			Input: text,
			Model: openai.ModerationTextLatest,
		})
		if err != nil {
			return nil, fmt.Errorf("moderation call: %w", err)
		}
		for _, r := range resp.Results {
			if r.Flagged {
				flags[i] = true
				break
			}
		}
	}
	return flags, nil
}
