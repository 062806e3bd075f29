// Package llm wraps the hosted text-generation model behind a small client
// interface and implements the prompt templates and response grammars used by
// the query pipeline.
package llm

import (
	"context"

	apperrors "github.com/cr360/cr360/internal/errors"
)

// ClarificationQuestion is a structured multiple-choice question emitted by
// ambiguity detection.
type ClarificationQuestion = apperrors.ClarificationQuestion

// ClarificationAnswer is a user's resolution to one ambiguity question
type ClarificationAnswer struct {
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// ConversationTurn is one user/assistant exchange
type ConversationTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// GeneratedSQL is the parsed result of SQL synthesis
type GeneratedSQL struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation"`
	MetricsUsed []string `json:"metrics_used"`
}

// AmbiguityResult is the parsed result of ambiguity detection
type AmbiguityResult struct {
	IsAmbiguous bool                    `json:"is_ambiguous"`
	Reasons     []string                `json:"reasons"`
	Suggestions []string                `json:"suggestions"`
	Questions   []ClarificationQuestion `json:"questions"`
}

// GenerateOptions carries optional per-call generation overrides
type GenerateOptions struct {
	SystemInstruction string
	// Temperature overrides the client default when non-nil
	Temperature *float64
}

// Client interface for model integration
type Client interface {
	// Generate produces free-form text for a prompt
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// GenerateWithContext prefixes the prompt with a context block
	GenerateWithContext(ctx context.Context, prompt, contextText string, opts GenerateOptions) (string, error)

	// GenerateSQL converts a natural-language query to SQL using the semantic
	// model context and up to the last three conversation turns
	GenerateSQL(ctx context.Context, query, semanticContext string, history []ConversationTurn) (*GeneratedSQL, error)

	// DetectAmbiguity classifies a query as ambiguous and proposes clarifications
	DetectAmbiguity(ctx context.Context, query, semanticContext string) (*AmbiguityResult, error)

	// CheckAvailability verifies the model endpoint is reachable
	CheckAvailability(ctx context.Context) error
}

// Config holds configuration for model clients
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

func floatPtr(v float64) *float64 {
	return &v
}
