// Package orchestrator drives the bounded model↔tool conversation for one
// request:
//
//	build messages → call the model → if tool calls, execute each against
//	the query service → append results → repeat until the model answers in
//	plain text or the round ceiling is hit.
//
// The conversation is request-local and append-only; nothing here is shared
// across requests.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voxgate/voxgate/internal/dbquery"
)

// DefaultMaxRounds bounds model↔tool round trips so the loop always
// terminates.
const DefaultMaxRounds = 5

// fallbackAnswer is returned when the round ceiling is hit with no usable
// content. The caller is never left without a response.
const fallbackAnswer = "Ich habe die Anfrage verarbeitet, konnte aber keine abschließende Antwort formulieren. Bitte formulieren Sie die Frage konkreter."

const systemPrompt = "Du bist ein Assistent für Geschäftsdaten. Beantworte Fragen ausschließlich anhand der bereitgestellten Datenbank-Werkzeuge. " +
	"Nutze list_tables und describe_table, um das Schema zu erkunden, bevor du Daten abfragst. Antworte knapp und auf Deutsch."

// ChatCompleter is the slice of the OpenAI client the loop depends on.
// *openai.Client satisfies it; tests script it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// queryService is the read-only tool surface the loop executes against.
type queryService interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]string, error)
	QueryTable(ctx context.Context, table string, filters map[string]any, limit int) ([]dbquery.Row, error)
	QueryTableWithJoin(ctx context.Context, table, joinTable, joinColumn string, filters map[string]any, limit int) ([]dbquery.Row, error)
}

var _ queryService = (*dbquery.Executor)(nil)

// Result is the outcome of one orchestration run.
type Result struct {
	Answer    string
	Rounds    int
	ToolCalls int
	// CeilingHit marks a degraded best-effort answer.
	CeilingHit bool
}

// Orchestrator runs the tool-calling loop.
type Orchestrator struct {
	completer ChatCompleter
	executor  queryService
	model     string
	maxRounds int
	suppress  Suppressor
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRounds overrides the round ceiling.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithSuppressor replaces the announcement-suppression predicate.
func WithSuppressor(s Suppressor) Option {
	return func(o *Orchestrator) { o.suppress = s }
}

// New creates an orchestrator over a model client and a query service.
func New(completer ChatCompleter, executor queryService, model string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		completer: completer,
		executor:  executor,
		model:     model,
		maxRounds: DefaultMaxRounds,
		suppress:  DefaultSuppressor(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Answer runs the loop for one user question.
//
// Tool calls in a turn are executed in the order received and each failure is
// fed back as a structured result; only a model-call failure aborts the
// request. On hitting the round ceiling the last substantive content — or an
// explicit fallback — is returned.
func (o *Orchestrator) Answer(ctx context.Context, question string) (*Result, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}
	tools := toolDefinitions()

	result := &Result{}
	lastContent := ""

	for round := 1; round <= o.maxRounds; round++ {
		result.Rounds = round

		resp, err := o.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    o.model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, fmt.Errorf("model call failed (round %d): %w", round, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("model returned no choices (round %d)", round)
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 {
			result.Answer = msg.Content
			log.Debug().Int("rounds", round).Int("tool_calls", result.ToolCalls).Msg("orchestration complete")
			return result, nil
		}

		// Filler prose announcing the tool call is blanked so it neither
		// biases later turns nor leaks to the user as an answer.
		content := msg.Content
		if o.suppress(content) {
			content = ""
		} else {
			lastContent = content
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   content,
			ToolCalls: msg.ToolCalls,
		})

		for _, call := range msg.ToolCalls {
			result.ToolCalls++
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    o.executeTool(ctx, call),
			})
		}
	}

	result.CeilingHit = true
	result.Answer = lastContent
	if result.Answer == "" {
		result.Answer = fallbackAnswer
	}
	log.Warn().Int("max_rounds", o.maxRounds).Msg("orchestration hit round ceiling")
	return result, nil
}
