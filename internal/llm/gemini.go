package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/observability"
)

const (
	GeminiAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel     = "gemini-2.5-flash"
	DefaultMaxTokens = 8192

	// Low temperature keeps SQL synthesis near-deterministic; ambiguity
	// detection tolerates slightly more variety.
	sqlTemperature       = 0.1
	ambiguityTemperature = 0.2
)

// GeminiClient implements the Client interface against the Gemini REST API
type GeminiClient struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
	logger    *observability.Logger
}

// Gemini API request structures
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// Gemini API response structures
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = GeminiAPIBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &GeminiClient{
		apiKey:    cfg.APIKey,
		model:     model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: observability.NewLogger("llm"),
	}, nil
}

// Generate produces free-form text for a prompt
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	request := geminiRequest{
		Contents: []geminiContent{
			{
				Parts: []geminiPart{{Text: prompt}},
				Role:  "user",
			},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: c.maxTokens,
		},
	}
	if opts.SystemInstruction != "" {
		request.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: opts.SystemInstruction}},
		}
	}

	start := time.Now()
	text, err := c.sendRequest(ctx, request)
	observability.RecordLLMMetrics("generate", time.Since(start), err)
	if err != nil {
		return "", err
	}

	c.logger.Debug(ctx, "Model response generated", map[string]interface{}{
		"prompt_length":   len(prompt),
		"response_length": len(text),
	})

	return text, nil
}

// GenerateWithContext prefixes the prompt with a context block before generation
func (c *GeminiClient) GenerateWithContext(ctx context.Context, prompt, contextText string, opts GenerateOptions) (string, error) {
	fullPrompt := fmt.Sprintf("Context:\n%s\n\n---\n\nUser Query:\n%s\n", contextText, prompt)
	return c.Generate(ctx, fullPrompt, opts)
}

// GenerateSQL converts a natural-language query to SQL. The semantic model is
// injected as context and up to the last three conversation turns precede the
// current query in the prompt.
func (c *GeminiClient) GenerateSQL(ctx context.Context, query, semanticContext string, history []ConversationTurn) (*GeneratedSQL, error) {
	prompt := buildSQLPrompt(query, history)

	response, err := c.GenerateWithContext(ctx, prompt, semanticContext, GenerateOptions{
		SystemInstruction: sqlSystemInstruction,
		Temperature:       floatPtr(sqlTemperature),
	})
	if err != nil {
		return nil, apperrors.NewLLMError(err, "sql_generation")
	}

	result := ParseSQLResponse(response)

	c.logger.Info(ctx, "SQL generated", map[string]interface{}{
		"query_length":  len(query),
		"sql_length":    len(result.SQL),
		"metrics_count": len(result.MetricsUsed),
	})

	return result, nil
}

// DetectAmbiguity classifies a query and proposes clarifications
func (c *GeminiClient) DetectAmbiguity(ctx context.Context, query, semanticContext string) (*AmbiguityResult, error) {
	prompt := fmt.Sprintf("User query: %s", query)

	response, err := c.GenerateWithContext(ctx, prompt, semanticContext, GenerateOptions{
		SystemInstruction: ambiguitySystemInstruction,
		Temperature:       floatPtr(ambiguityTemperature),
	})
	if err != nil {
		return nil, apperrors.NewLLMError(err, "ambiguity_detection")
	}

	result := ParseAmbiguityResponse(response)

	c.logger.Info(ctx, "Ambiguity detection completed", map[string]interface{}{
		"is_ambiguous":    result.IsAmbiguous,
		"questions_count": len(result.Questions),
	})

	return result, nil
}

// CheckAvailability verifies the model endpoint responds to a trivial prompt
func (c *GeminiClient) CheckAvailability(ctx context.Context) error {
	_, err := c.Generate(ctx, "ping", GenerateOptions{})
	return err
}

func (c *GeminiClient) sendRequest(ctx context.Context, request geminiRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", apperrors.NewLLMError(err, "marshal_request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.NewLLMError(err, "build_request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.NewLLMError(err, "transport")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewLLMError(err, "read_response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewLLMError(
			fmt.Errorf("gemini API error: status code %d", resp.StatusCode),
			"api_status",
		).WithMetadata("status_code", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperrors.NewLLMError(err, "parse_response")
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", apperrors.New(apperrors.ErrCodeLLMEmptyResponse, "Empty response from Gemini API")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", apperrors.New(apperrors.ErrCodeLLMEmptyResponse, "Empty response from Gemini API")
	}

	return text, nil
}
