package processor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/llm"
	"github.com/cr360/cr360/internal/observability"
)

// ChatMessage is one message in a client-supplied conversation transcript
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of the chat endpoint
type ChatRequest struct {
	Query               string                    `json:"query" binding:"required"`
	ConversationID      string                    `json:"conversation_id"`
	ConversationHistory []ChatMessage             `json:"conversation_history"`
	CheckAmbiguity      *bool                     `json:"check_ambiguity"`
	Clarifications      []llm.ClarificationAnswer `json:"clarifications"`
}

// ChatResponse is the success envelope of the chat endpoint
type ChatResponse struct {
	Success          bool         `json:"success"`
	Query            string       `json:"query"`
	ConversationID   string       `json:"conversation_id"`
	Result           *QueryResult `json:"result"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
}

// AuthMiddleware is the hook for the authentication layer
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
}

// SetupRoutes builds the gin engine with all endpoints and middleware
func (qp *QueryProcessor) SetupRoutes(authMiddleware AuthMiddleware) *gin.Engine {
	r := gin.New()

	r.Use(observability.RecoveryMiddleware(qp.logger))
	r.Use(observability.RequestLoggingMiddleware(qp.logger))
	r.Use(observability.CORSWithLogging(qp.logger))

	// Public health endpoint
	r.GET("/health", func(c *gin.Context) {
		if qp.healthChecker != nil {
			response := qp.healthChecker.GetHealthResponse(c.Request.Context())
			statusCode := http.StatusOK
			if response.Status == observability.HealthStatusUnhealthy {
				statusCode = http.StatusServiceUnavailable
			}
			c.JSON(statusCode, response)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "cr360-query-service",
		})
	})

	// Operational metrics snapshot
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, observability.GetGlobalMetrics().GetAll())
	})

	api := r.Group("/api/v1")
	if authMiddleware != nil {
		api.Use(authMiddleware.Middleware())
	}
	{
		api.POST("/chat", qp.handleChat)

		api.GET("/semantic/metrics", qp.handleListMetrics)
		api.GET("/semantic/search", qp.handleSearchMetrics)
		api.POST("/semantic/reload", qp.handleReloadContext)
	}

	return r
}

// handleChat is the main natural-language query endpoint
func (qp *QueryProcessor) handleChat(c *gin.Context) {
	start := time.Now()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := apperrors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	if len(req.Query) > qp.maxQueryLength {
		enhancedErr := apperrors.NewInvalidInputError("query",
			fmt.Sprintf("query exceeds the maximum length of %d characters", qp.maxQueryLength))
		c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
		return
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	checkAmbiguity := true
	if req.CheckAmbiguity != nil {
		checkAmbiguity = *req.CheckAmbiguity
	}

	// Clarification answers fold into the query text; the clarified query
	// skips the ambiguity check so the user is never asked twice.
	query := req.Query
	if len(req.Clarifications) > 0 {
		query = llm.AugmentQuery(req.Query, req.Clarifications)
		checkAmbiguity = false
	}

	history := historyFromMessages(req.ConversationHistory)
	if history == nil && qp.conversations != nil && req.ConversationID != "" {
		stored, err := qp.conversations.History(c.Request.Context(), req.ConversationID)
		if err != nil {
			qp.logger.Warn(c.Request.Context(), "Failed to load conversation history", map[string]interface{}{
				"conversation_id": req.ConversationID,
				"error":           err.Error(),
			})
		} else {
			history = stored
		}
	}
	if len(history) > qp.historyTurns {
		history = history[len(history)-qp.historyTurns:]
	}

	result, err := qp.ProcessQuery(c.Request.Context(), query, history, checkAmbiguity)
	if err != nil {
		qp.respondChatError(c, req.Query, err)
		return
	}

	if qp.conversations != nil {
		turn := llm.ConversationTurn{User: query, Assistant: result.Explanation}
		if err := qp.conversations.Append(c.Request.Context(), conversationID, turn); err != nil {
			qp.logger.Warn(c.Request.Context(), "Failed to persist conversation turn", map[string]interface{}{
				"conversation_id": conversationID,
				"error":           err.Error(),
			})
		}
	}

	c.JSON(http.StatusOK, ChatResponse{
		Success:          true,
		Query:            req.Query,
		ConversationID:   conversationID,
		Result:           result,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	})
}

// respondChatError maps pipeline failures onto the chat endpoint's contract
func (qp *QueryProcessor) respondChatError(c *gin.Context, originalQuery string, err error) {
	enhancedErr, ok := err.(*apperrors.EnhancedError)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "An unexpected error occurred while processing your query.",
			"error_type": "InternalError",
		})
		return
	}

	switch enhancedErr.Code {
	case apperrors.ErrCodeAmbiguousQuery:
		c.JSON(http.StatusBadRequest, gin.H{
			"query":       originalQuery,
			"reasons":     []string{enhancedErr.Message},
			"suggestions": enhancedErr.Suggestions,
			"questions":   enhancedErr.Questions,
		})
	case apperrors.ErrCodeSQLGeneration, apperrors.ErrCodeSQLValidation:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      enhancedErr.Error(),
			"error_type": string(enhancedErr.Code),
		})
	case apperrors.ErrCodeSQLExecution, apperrors.ErrCodeDatabase, apperrors.ErrCodeDatabaseConnection:
		// Execution details stay out of the user-facing message
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to execute query. Please try rephrasing your question.",
			"error_type": string(enhancedErr.Code),
			"details":    gin.H{"original_error": enhancedErr.Message},
		})
	default:
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
	}
}

// Semantic model browse handlers

func (qp *QueryProcessor) handleListMetrics(c *gin.Context) {
	categories, err := qp.semanticStore.Categories()
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	total := 0
	for _, cat := range categories {
		total += len(cat.Metrics)
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"count":      total,
	})
}

func (qp *QueryProcessor) handleSearchMetrics(c *gin.Context) {
	term := c.Query("q")
	if term == "" {
		qp.handleListMetrics(c)
		return
	}

	matches, err := qp.semanticStore.SearchBySynonym(term)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   term,
		"matches": matches,
		"count":   len(matches),
	})
}

func (qp *QueryProcessor) handleReloadContext(c *gin.Context) {
	if err := qp.semanticStore.Reload(); err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	qp.invalidateSemanticContext()

	count, err := qp.semanticStore.MetricCount()
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "reloaded",
		"metric_count": count,
	})
}

// historyFromMessages converts a role/content transcript into turns. Each
// message becomes its own turn with the opposite side empty, preserving
// message order for the prompt builder.
func historyFromMessages(messages []ChatMessage) []llm.ConversationTurn {
	if len(messages) == 0 {
		return nil
	}

	turns := make([]llm.ConversationTurn, 0, len(messages))
	for _, msg := range messages {
		turn := llm.ConversationTurn{}
		if msg.Role == "assistant" {
			turn.Assistant = msg.Content
		} else {
			turn.User = msg.Content
		}
		turns = append(turns, turn)
	}
	return turns
}

// formatErrorResponse formats an error into a user-friendly response
func formatErrorResponse(err error) gin.H {
	if enhancedErr, ok := err.(*apperrors.EnhancedError); ok {
		errBody := gin.H{
			"code":    enhancedErr.Code,
			"message": enhancedErr.Message,
		}
		if enhancedErr.Details != "" {
			errBody["details"] = enhancedErr.Details
		}
		if enhancedErr.Suggestion != "" {
			errBody["suggestion"] = enhancedErr.Suggestion
		}
		if len(enhancedErr.Metadata) > 0 {
			errBody["metadata"] = enhancedErr.Metadata
		}
		return gin.H{"error": errBody}
	}

	return gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	}
}

// getErrorStatusCode returns the appropriate HTTP status code for an error
func getErrorStatusCode(err error) int {
	if enhancedErr, ok := err.(*apperrors.EnhancedError); ok {
		switch enhancedErr.Code {
		case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeAmbiguousQuery:
			return http.StatusBadRequest
		case apperrors.ErrCodeInvalidCredentials, apperrors.ErrCodeNotAuthenticated:
			return http.StatusUnauthorized
		case apperrors.ErrCodeMetricNotFound:
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
