// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Query pipeline errors
	ErrCodeAmbiguousQuery ErrorCode = "AMBIGUOUS_QUERY"
	ErrCodeSQLGeneration  ErrorCode = "SQL_GENERATION_FAILED"
	ErrCodeSQLValidation  ErrorCode = "SQL_VALIDATION_FAILED"
	ErrCodeSQLExecution   ErrorCode = "SQL_EXECUTION_FAILED"
	ErrCodePromptBuilding ErrorCode = "PROMPT_BUILD_FAILED"

	// LLM errors
	ErrCodeLLMRequest       ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeLLMEmptyResponse ErrorCode = "LLM_EMPTY_RESPONSE"

	// Semantic model errors
	ErrCodeContextLoad    ErrorCode = "CONTEXT_LOAD_FAILED"
	ErrCodeMetricNotFound ErrorCode = "METRIC_NOT_FOUND"

	// Database errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabase           ErrorCode = "DATABASE_ERROR"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInsufficientPerms  ErrorCode = "INSUFFICIENT_PERMISSIONS"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
)

// ClarificationQuestion is a structured multiple-choice question asked when a
// query is ambiguous. It rides on AmbiguousQuery errors so the transport layer
// can return it to the user.
type ClarificationQuestion struct {
	QuestionID   string   `json:"question_id"`
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
}

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code        ErrorCode               `json:"code"`
	Message     string                  `json:"message"`
	Details     string                  `json:"details,omitempty"`
	Suggestion  string                  `json:"suggestion,omitempty"`
	Metadata    map[string]interface{}  `json:"metadata,omitempty"`
	Suggestions []string                `json:"suggestions,omitempty"`
	Questions   []ClarificationQuestion `json:"questions,omitempty"`
	Cause       error                   `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsCode reports whether err is an EnhancedError with the given code.
func IsCode(err error, code ErrorCode) bool {
	if enhanced, ok := err.(*EnhancedError); ok {
		return enhanced.Code == code
	}
	return false
}

// Common error constructors with pre-configured messages

// NewAmbiguousQueryError signals that a query cannot be answered without
// clarification. Not a system failure: the caller is expected to collect
// answers and re-submit with the augmented query.
func NewAmbiguousQueryError(suggestions []string, questions []ClarificationQuestion) *EnhancedError {
	e := New(ErrCodeAmbiguousQuery, "Your query is ambiguous. Please clarify.").
		WithDetails("The query could be interpreted in more than one way").
		WithSuggestion("Answer the clarification questions, or rephrase the query with an explicit metric, time period, and breakdown level.")
	e.Suggestions = suggestions
	e.Questions = questions
	return e
}

// NewSQLGenerationError creates an error for SQL synthesis failures
func NewSQLGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeSQLGeneration, "Failed to generate SQL query").
		WithDetails("The AI was unable to convert your natural language query to SQL").
		WithSuggestion("Try simplifying your query or being more specific about the metrics you want to query.")
}

// NewSQLValidationError creates an error for safety-validation failures
func NewSQLValidationError(validationErrors []string) *EnhancedError {
	e := New(ErrCodeSQLValidation, "Generated SQL is invalid").
		WithDetails(strings.Join(validationErrors, ", ")).
		WithSuggestion("The generated query violated a safety rule. Rephrase the question; retrying the same query will likely reproduce the same SQL.")
	e.Metadata["validation_errors"] = validationErrors
	return e
}

// NewSQLExecutionError creates an error for SQL execution failures
func NewSQLExecutionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeSQLExecution, "SQL execution failed").
		WithDetails("The database rejected the generated query").
		WithSuggestion("Try rephrasing your question.").
		WithMetadata("retryable", true)
}

// NewDatabaseError creates a generic error for unexpected database failures
func NewDatabaseError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabase, "Database operation failed").
		WithDetails("An unexpected error occurred while talking to the database").
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}

// NewDatabaseConnectionError creates an error for connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the database").
		WithSuggestion("The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewLLMError creates an error for model transport or empty-response failures
func NewLLMError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeLLMRequest, "LLM request failed").
		WithDetails(fmt.Sprintf("The reasoning model failed during: %s", operation)).
		WithSuggestion("This is typically a temporary issue. Please try your query again in a moment.").
		WithMetadata("retryable", true)
}

// NewContextLoadError creates an error for semantic model loading failures
func NewContextLoadError(err error, path string) *EnhancedError {
	return Wrap(err, ErrCodeContextLoad, "Failed to load semantic model").
		WithDetails(fmt.Sprintf("Could not load the semantic model from: %s", path)).
		WithSuggestion("Check that the context file exists, is valid YAML, and contains a 'metrics' section.").
		WithMetadata("path", path)
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *EnhancedError {
	return New(ErrCodeInvalidCredentials, "Invalid username or password").
		WithDetails("Authentication failed with the provided credentials").
		WithSuggestion("Please check your username and password and try again.")
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *EnhancedError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Log in via /api/v1/auth/login, or include a valid API key in the 'X-API-Key' header.")
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}
