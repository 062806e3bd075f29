package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cr360/cr360/internal/errors"
)

func geminiTestServer(t *testing.T, responseText string, capture *geminiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}

		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{Content: geminiContent{Parts: []geminiPart{{Text: responseText}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(Config{
		APIKey:  "test-key",
		Model:   "gemini-2.5-flash",
		BaseURL: baseURL,
	})
	require.NoError(t, err)
	return client
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(Config{})
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var captured geminiRequest
	server := geminiTestServer(t, "generated text", &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)

	text, err := client.Generate(context.Background(), "hello", GenerateOptions{
		SystemInstruction: "be brief",
		Temperature:       floatPtr(0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "generated text", text)

	require.Len(t, captured.Contents, 1)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "hello", captured.Contents[0].Parts[0].Text)
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "be brief", captured.SystemInstruction.Parts[0].Text)
	require.NotNil(t, captured.GenerationConfig)
	require.NotNil(t, captured.GenerationConfig.Temperature)
	assert.Equal(t, 0.5, *captured.GenerationConfig.Temperature)
	assert.Equal(t, DefaultMaxTokens, captured.GenerationConfig.MaxOutputTokens)
}

func TestGenerateWithContextFormat(t *testing.T) {
	var captured geminiRequest
	server := geminiTestServer(t, "ok", &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.GenerateWithContext(context.Background(), "my question", "the context", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Context:\nthe context\n\n---\n\nUser Query:\nmy question\n", captured.Contents[0].Parts[0].Text)
}

func TestGenerateEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Generate(context.Background(), "hello", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLLMEmptyResponse))
}

func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Generate(context.Background(), "hello", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLLMRequest))
}

func TestGenerateSQL(t *testing.T) {
	response := "```sql\nSELECT delinquency_rate_30_plus FROM computed_metrics\n```\n" +
		"Explanation: Portfolio-level rate comes from computed_metrics.\n" +
		"Metrics used: delinquency_rate_30_plus"

	var captured geminiRequest
	server := geminiTestServer(t, response, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)

	history := []ConversationTurn{{User: "prior question", Assistant: "prior answer"}}
	result, err := client.GenerateSQL(context.Background(), "what is the delinquency rate?", "metrics: {}", history)
	require.NoError(t, err)

	assert.Equal(t, "SELECT delinquency_rate_30_plus FROM computed_metrics", result.SQL)
	assert.Equal(t, "Portfolio-level rate comes from computed_metrics.", result.Explanation)
	assert.Equal(t, []string{"delinquency_rate_30_plus"}, result.MetricsUsed)

	// Synthesis pins temperature low and threads history through the prompt
	require.NotNil(t, captured.GenerationConfig.Temperature)
	assert.Equal(t, sqlTemperature, *captured.GenerationConfig.Temperature)
	require.NotNil(t, captured.SystemInstruction)
	assert.Contains(t, captured.SystemInstruction.Parts[0].Text, "TWO-TIER")

	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Previous conversation:")
	assert.Contains(t, prompt, "User: prior question")
	assert.Contains(t, prompt, "Current query: what is the delinquency rate?")
	assert.True(t, strings.HasPrefix(prompt, "Context:\nmetrics: {}\n"))
}

func TestGenerateSQLTransportFailureWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.GenerateSQL(context.Background(), "query", "context", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLLMRequest))
}

func TestDetectAmbiguity(t *testing.T) {
	response := `Ambiguous: Yes

Reasons:
- Charge-off type unclear

Suggestions:
- Specify gross or net

Questions:
[{"question_id": "charge_off_type", "question_text": "Which charge-off?", "options": ["Gross", "Net"]}]`

	var captured geminiRequest
	server := geminiTestServer(t, response, &captured)
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.DetectAmbiguity(context.Background(), "charge-off rate?", "metrics: {}")
	require.NoError(t, err)

	assert.True(t, result.IsAmbiguous)
	assert.Equal(t, []string{"Charge-off type unclear"}, result.Reasons)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, "charge_off_type", result.Questions[0].QuestionID)

	require.NotNil(t, captured.GenerationConfig.Temperature)
	assert.Equal(t, ambiguityTemperature, *captured.GenerationConfig.Temperature)
	assert.Contains(t, captured.Contents[0].Parts[0].Text, "User query: charge-off rate?")
}

func TestCheckAvailability(t *testing.T) {
	server := geminiTestServer(t, "pong", nil)
	defer server.Close()

	client := newTestClient(t, server.URL)
	assert.NoError(t, client.CheckAvailability(context.Background()))

	server.Close()
	assert.Error(t, client.CheckAvailability(context.Background()))
}
