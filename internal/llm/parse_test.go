package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSQLResponse(t *testing.T) {
	tests := []struct {
		name            string
		response        string
		wantSQL         string
		wantExplanation string
		wantMetrics     []string
	}{
		{
			name: "full response with sql fence",
			response: "Here is the query:\n```sql\nSELECT total_outstanding_balance\nFROM computed_metrics\n```\n\n" +
				"Explanation: Used computed_metrics because the query asks for a portfolio total.\n\n" +
				"Metrics used: total_outstanding_balance",
			wantSQL:         "SELECT total_outstanding_balance\nFROM computed_metrics",
			wantExplanation: "Used computed_metrics because the query asks for a portfolio total.",
			wantMetrics:     []string{"total_outstanding_balance"},
		},
		{
			name:        "bare fence fallback",
			response:    "```\nSELECT 1\n```",
			wantSQL:     "SELECT 1",
			wantMetrics: []string{},
		},
		{
			name: "sql fence preferred over earlier bare fence content",
			response: "```sql\nSELECT a FROM accounts\n```\nExplanation: first block wins.\n",
			wantSQL:         "SELECT a FROM accounts",
			wantExplanation: "first block wins.",
			wantMetrics:     []string{},
		},
		{
			name:        "no code block",
			response:    "I cannot answer that.",
			wantMetrics: []string{},
		},
		{
			name: "metrics as bulleted multi-line list",
			response: "```sql\nSELECT 1\n```\nMetrics used:\n- delinquency_rate_30_plus\n* net_charge_off_rate\n",
			wantSQL:     "SELECT 1",
			wantMetrics: []string{"delinquency_rate_30_plus", "net_charge_off_rate"},
		},
		{
			name: "metrics comma separated",
			response: "```sql\nSELECT 1\n```\nMetrics used: a, b , c",
			wantSQL:     "SELECT 1",
			wantMetrics: []string{"a", "b", "c"},
		},
		{
			name: "explanation without metrics section runs to end",
			response: "```sql\nSELECT 1\n```\nExplanation: trailing text\nwith a second line",
			wantSQL:         "SELECT 1",
			wantExplanation: "trailing text\nwith a second line",
			wantMetrics:     []string{},
		},
		{
			name:        "empty response",
			response:    "",
			wantMetrics: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSQLResponse(tt.response)
			assert.Equal(t, tt.wantSQL, got.SQL)
			assert.Equal(t, tt.wantExplanation, got.Explanation)
			assert.Equal(t, tt.wantMetrics, got.MetricsUsed)
		})
	}
}

func TestParseAmbiguityResponseAmbiguous(t *testing.T) {
	response := `Ambiguous: Yes

Reasons:
- Charge-off could be gross or net
- No time period specified

Suggestions:
- Specify gross or net charge-off
- Specify the quarter

Questions:
[
  {
    "question_id": "charge_off_type",
    "question_text": "What type of charge-off do you mean?",
    "options": ["Gross charge-off", "Net charge-off"]
  },
  {
    "question_id": "time_period",
    "question_text": "Which time period?",
    "options": ["Latest quarter", "Q4 2024", "All quarters"]
  }
]`

	got := ParseAmbiguityResponse(response)

	assert.True(t, got.IsAmbiguous)
	assert.Equal(t, []string{"Charge-off could be gross or net", "No time period specified"}, got.Reasons)
	assert.Equal(t, []string{"Specify gross or net charge-off", "Specify the quarter"}, got.Suggestions)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "charge_off_type", got.Questions[0].QuestionID)
	assert.Equal(t, []string{"Gross charge-off", "Net charge-off"}, got.Questions[0].Options)
}

func TestParseAmbiguityResponseUnambiguous(t *testing.T) {
	got := ParseAmbiguityResponse("Ambiguous: No\n\nThe query is clear.")

	assert.False(t, got.IsAmbiguous)
	assert.Empty(t, got.Reasons)
	assert.Empty(t, got.Suggestions)
	assert.Empty(t, got.Questions)
}

func TestParseAmbiguityVerdictIsLiteral(t *testing.T) {
	// Only the exact marker flips the verdict
	assert.False(t, ParseAmbiguityResponse("Ambiguous: yes").IsAmbiguous)
	assert.False(t, ParseAmbiguityResponse("Ambiguous:Yes").IsAmbiguous)
	assert.True(t, ParseAmbiguityResponse("Ambiguous: Yes").IsAmbiguous)
}

func TestParseAmbiguityQuestionsDiscardedWholesale(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name: "element missing question_text",
			response: `Ambiguous: Yes
Questions:
[
  {"question_id": "a", "question_text": "First?", "options": ["x", "y"]},
  {"question_id": "b", "options": ["x", "y"]}
]`,
		},
		{
			name: "element with one option",
			response: `Ambiguous: Yes
Questions:
[
  {"question_id": "a", "question_text": "First?", "options": ["x", "y"]},
  {"question_id": "b", "question_text": "Second?", "options": ["only"]}
]`,
		},
		{
			name: "malformed json",
			response: `Ambiguous: Yes
Questions:
[{"question_id": "a", "question_text": "First?", "options": ["x", "y"],]`,
		},
		{
			name:     "no array present",
			response: "Ambiguous: Yes\nQuestions:\nnone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmbiguityResponse(tt.response)
			assert.True(t, got.IsAmbiguous)
			// One bad element invalidates the whole list, never a partial keep
			assert.Empty(t, got.Questions)
		})
	}
}

func TestParseAmbiguityQuestionsInsideCodeFence(t *testing.T) {
	response := "Ambiguous: Yes\nQuestions:\n```json\n" +
		`[{"question_id": "a", "question_text": "Q?", "options": ["x", "y"]}]` +
		"\n```"

	got := ParseAmbiguityResponse(response)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "a", got.Questions[0].QuestionID)
}

func TestParseAmbiguityReasonsEndAtQuestionsWithoutSuggestions(t *testing.T) {
	response := `Ambiguous: Yes
Reasons:
- only reason
Questions:
[{"question_id": "a", "question_text": "Q?", "options": ["x", "y"]}]`

	got := ParseAmbiguityResponse(response)
	assert.Equal(t, []string{"only reason"}, got.Reasons)
	assert.Len(t, got.Questions, 1)
}

func TestAugmentQuery(t *testing.T) {
	clarifications := []ClarificationAnswer{
		{QuestionID: "charge_off_type", SelectedOption: "Net charge-off"},
		{QuestionID: "time_period", SelectedOption: "Q4 2024"},
	}

	got := AugmentQuery("What is the charge-off rate?", clarifications)

	want := "What is the charge-off rate?\n\n[Clarifications provided by user:\n" +
		"- For 'charge_off_type': User selected 'Net charge-off'\n" +
		"- For 'time_period': User selected 'Q4 2024'\n]"
	assert.Equal(t, want, got)
}

func TestAugmentQueryNoClarifications(t *testing.T) {
	assert.Equal(t, "original", AugmentQuery("original", nil))
	assert.Equal(t, "original", AugmentQuery("original", []ClarificationAnswer{}))
}

func TestBuildSQLPrompt(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		assert.Equal(t, "Current query: show balances", buildSQLPrompt("show balances", nil))
	})

	t.Run("history capped to last three turns", func(t *testing.T) {
		history := []ConversationTurn{
			{User: "q1", Assistant: "a1"},
			{User: "q2", Assistant: "a2"},
			{User: "q3", Assistant: "a3"},
			{User: "q4", Assistant: "a4"},
		}

		got := buildSQLPrompt("q5", history)

		want := "Previous conversation:\n" +
			"User: q2\nAssistant: a2\n" +
			"User: q3\nAssistant: a3\n" +
			"User: q4\nAssistant: a4\n" +
			"\nCurrent query: q5"
		assert.Equal(t, want, got)
		assert.NotContains(t, got, "q1")
	})
}
