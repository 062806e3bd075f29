// Package processor orchestrates the query pipeline: ambiguity check, SQL
// synthesis, safety validation, execution and result shaping. It also hosts
// the HTTP surface.
package processor

import (
	"context"
	"time"

	"github.com/cr360/cr360/internal/database"
	apperrors "github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/llm"
	"github.com/cr360/cr360/internal/observability"
	"github.com/cr360/cr360/internal/semantic"
)

// SemanticStore is the slice of the semantic model store the processor uses
type SemanticStore interface {
	RenderForPrompt() (string, error)
	Categories() ([]semantic.Category, error)
	SearchBySynonym(term string) ([]semantic.Metric, error)
	Reload() error
	MetricCount() (int, error)
}

// DatabaseClient executes generated SQL
type DatabaseClient interface {
	ExecuteQuery(ctx context.Context, query string, args ...interface{}) ([]database.Row, error)
	Ping(ctx context.Context) error
}

// ConversationStore persists conversation turns for the HTTP layer. The
// pipeline itself is stateless; history always arrives as an argument.
type ConversationStore interface {
	History(ctx context.Context, conversationID string) ([]llm.ConversationTurn, error)
	Append(ctx context.Context, conversationID string, turn llm.ConversationTurn) error
}

// QueryResult is the outcome of one processed query
type QueryResult struct {
	SQL               string         `json:"sql"`
	Explanation       string         `json:"explanation"`
	Results           []database.Row `json:"results"`
	MetricsUsed       []string       `json:"metrics_used"`
	VisualizationHint string         `json:"visualization_hint"`
	RowCount          int            `json:"row_count"`
}

// QueryProcessor runs natural-language queries through the pipeline. All
// collaborators are injected; the processor holds no request state beyond
// the lazily rendered semantic context.
type QueryProcessor struct {
	llmClient     llm.Client
	semanticStore SemanticStore
	safetyChecker *SafetyChecker
	dbClient      DatabaseClient
	conversations ConversationStore
	healthChecker *observability.HealthChecker
	logger        *observability.Logger

	maxQueryLength int
	historyTurns   int

	// Rendered once on first use. Unlocked lazy init: a concurrent first
	// query may render twice, the second result wins harmlessly.
	semanticContext string
}

// NewQueryProcessor creates a processor with its required collaborators
func NewQueryProcessor(llmClient llm.Client, semanticStore SemanticStore, dbClient DatabaseClient) *QueryProcessor {
	return &QueryProcessor{
		llmClient:      llmClient,
		semanticStore:  semanticStore,
		safetyChecker:  NewSafetyChecker(),
		dbClient:       dbClient,
		maxQueryLength: 1000,
		historyTurns:   3,
		logger:         observability.NewLogger("processor"),
	}
}

// WithQueryLimits overrides the request query-length cap and the number of
// stored conversation turns handed to the prompt builder
func (qp *QueryProcessor) WithQueryLimits(maxQueryLength, historyTurns int) *QueryProcessor {
	if maxQueryLength > 0 {
		qp.maxQueryLength = maxQueryLength
	}
	if historyTurns >= 0 {
		qp.historyTurns = historyTurns
	}
	return qp
}

// WithConversationStore attaches an optional conversation history store
func (qp *QueryProcessor) WithConversationStore(store ConversationStore) *QueryProcessor {
	qp.conversations = store
	return qp
}

// WithHealthChecker attaches the health checker backing the health endpoint
func (qp *QueryProcessor) WithHealthChecker(checker *observability.HealthChecker) *QueryProcessor {
	qp.healthChecker = checker
	return qp
}

// ProcessQuery runs one query through the pipeline. History is supplied by
// the caller on every call; nothing is retained across invocations. The
// returned error is always one of the typed pipeline failures.
func (qp *QueryProcessor) ProcessQuery(ctx context.Context, query string, history []llm.ConversationTurn, checkAmbiguity bool) (*QueryResult, error) {
	start := time.Now()
	var failure string
	defer func() {
		observability.RecordQueryMetrics(time.Since(start), failure == "", failure)
	}()

	qp.logger.Info(ctx, "Processing natural language query", map[string]interface{}{
		"query_length":    len(query),
		"has_history":     len(history) > 0,
		"check_ambiguity": checkAmbiguity,
	})

	semanticContext, err := qp.renderSemanticContext()
	if err != nil {
		failure = string(apperrors.ErrCodeSQLGeneration)
		return nil, apperrors.NewSQLGenerationError(err)
	}

	if checkAmbiguity {
		ambiguity, err := qp.llmClient.DetectAmbiguity(ctx, query, semanticContext)
		if err != nil {
			failure = string(apperrors.ErrCodeSQLGeneration)
			return nil, apperrors.NewSQLGenerationError(err)
		}
		if ambiguity.IsAmbiguous {
			qp.logger.Warn(ctx, "Ambiguous query detected", map[string]interface{}{
				"reasons_count":   len(ambiguity.Reasons),
				"questions_count": len(ambiguity.Questions),
			})
			observability.GetGlobalMetrics().Inc(observability.MetricQueryAmbiguous, nil)
			failure = string(apperrors.ErrCodeAmbiguousQuery)
			return nil, apperrors.NewAmbiguousQueryError(ambiguity.Suggestions, ambiguity.Questions)
		}
	}

	generated, err := qp.llmClient.GenerateSQL(ctx, query, semanticContext, history)
	if err != nil {
		failure = string(apperrors.ErrCodeSQLGeneration)
		return nil, apperrors.NewSQLGenerationError(err)
	}

	validation := qp.safetyChecker.ValidateSQL(generated.SQL)
	if !validation.IsValid {
		qp.logger.Error(ctx, "SQL validation failed", nil, map[string]interface{}{
			"errors": validation.Errors,
		})
		observability.GetGlobalMetrics().Inc(observability.MetricQueryValidationFailed, nil)
		failure = string(apperrors.ErrCodeSQLValidation)
		return nil, apperrors.NewSQLValidationError(validation.Errors)
	}

	// Execution failures propagate with their own typed errors untouched
	results, err := qp.dbClient.ExecuteQuery(ctx, generated.SQL)
	if err != nil {
		failure = errorCodeOf(err)
		return nil, err
	}

	hint := SuggestVisualization(generated.SQL, results)

	observability.GetGlobalMetrics().Observe(observability.MetricQueryRowsReturned, float64(len(results)), nil)
	qp.logger.Info(ctx, "Query processed successfully", map[string]interface{}{
		"rows_returned": len(results),
		"visualization": hint,
	})

	return &QueryResult{
		SQL:               generated.SQL,
		Explanation:       generated.Explanation,
		Results:           results,
		MetricsUsed:       generated.MetricsUsed,
		VisualizationHint: hint,
		RowCount:          len(results),
	}, nil
}

func (qp *QueryProcessor) renderSemanticContext() (string, error) {
	if qp.semanticContext != "" {
		return qp.semanticContext, nil
	}

	rendered, err := qp.semanticStore.RenderForPrompt()
	if err != nil {
		return "", err
	}

	qp.semanticContext = rendered
	return rendered, nil
}

// invalidateSemanticContext drops the cached render after a model reload
func (qp *QueryProcessor) invalidateSemanticContext() {
	qp.semanticContext = ""
}

func errorCodeOf(err error) string {
	if enhanced, ok := err.(*apperrors.EnhancedError); ok {
		return string(enhanced.Code)
	}
	return "unknown"
}
