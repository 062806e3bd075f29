package llm

import (
	"encoding/json"
	"strings"
)

// Response grammars for the two reasoning tasks. Parsing is deliberately
// forgiving: absent sections yield empty values, never errors, because the
// pipeline treats an unparseable response the same as an empty one.

// ParseSQLResponse extracts the SQL statement, explanation and metrics list
// from a synthesis response. The first fenced code block wins, with an
// sql-tagged fence preferred over a bare one.
func ParseSQLResponse(response string) *GeneratedSQL {
	result := &GeneratedSQL{MetricsUsed: []string{}}

	if i := strings.Index(response, "```sql"); i >= 0 {
		result.SQL = fencedBody(response, i+len("```sql"))
	} else if i := strings.Index(response, "```"); i >= 0 {
		result.SQL = fencedBody(response, i+len("```"))
	}

	if i := strings.Index(response, "Explanation:"); i >= 0 {
		start := i + len("Explanation:")
		end := strings.Index(response[start:], "Metrics used:")
		if end == -1 {
			end = len(response) - start
		}
		result.Explanation = strings.TrimSpace(response[start : start+end])
	}

	if i := strings.Index(response, "Metrics used:"); i >= 0 {
		metricsText := strings.TrimSpace(response[i+len("Metrics used:"):])
		for _, item := range strings.Split(strings.ReplaceAll(metricsText, "\n", ","), ",") {
			item = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(item), "-*"))
			if item != "" {
				result.MetricsUsed = append(result.MetricsUsed, item)
			}
		}
	}

	return result
}

// fencedBody returns the text between start and the closing fence. An
// unclosed fence consumes the rest of the response save its final character.
func fencedBody(response string, start int) string {
	end := strings.Index(response[start:], "```")
	if end == -1 {
		end = len(response) - 1 - start
	}
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(response[start : start+end])
}

// ParseAmbiguityResponse extracts the ambiguity verdict, reasons, suggestions
// and structured clarification questions. The verdict is the literal marker
// "Ambiguous: Yes"; reasons and suggestions are dash-prefixed line lists; the
// questions are the JSON array following the "Questions:" label. A malformed
// questions array discards the whole list rather than keeping a partial one.
func ParseAmbiguityResponse(response string) *AmbiguityResult {
	result := &AmbiguityResult{
		IsAmbiguous: strings.Contains(response, "Ambiguous: Yes"),
		Reasons:     []string{},
		Suggestions: []string{},
		Questions:   []ClarificationQuestion{},
	}

	if i := strings.Index(response, "Reasons:"); i >= 0 {
		start := i + len("Reasons:")
		end := strings.Index(response[start:], "Suggestions:")
		if end == -1 {
			end = strings.Index(response[start:], "Questions:")
		}
		if end == -1 {
			end = len(response) - start
		}
		result.Reasons = parseListLines(response[start : start+end])
	}

	if i := strings.Index(response, "Suggestions:"); i >= 0 {
		start := i + len("Suggestions:")
		end := strings.Index(response[start:], "Questions:")
		if end == -1 {
			end = len(response) - start
		}
		result.Suggestions = parseListLines(response[start : start+end])
	}

	if i := strings.Index(response, "Questions:"); i >= 0 {
		result.Questions = parseQuestions(response[i+len("Questions:"):])
	}

	return result
}

func parseListLines(text string) []string {
	items := []string{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		item := strings.TrimSpace(strings.Trim(line, "- "))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseQuestions pulls the bracketed JSON array out of the text (markdown
// fences around it are tolerated) and validates every element. Any element
// missing a field or carrying fewer than two options invalidates the entire
// list.
func parseQuestions(text string) []ClarificationQuestion {
	text = strings.TrimSpace(text)

	first := strings.Index(text, "[")
	last := strings.LastIndex(text, "]")
	if first == -1 || last <= first {
		return []ClarificationQuestion{}
	}

	var raw []struct {
		QuestionID   *string  `json:"question_id"`
		QuestionText *string  `json:"question_text"`
		Options      []string `json:"options"`
	}
	if err := json.Unmarshal([]byte(text[first:last+1]), &raw); err != nil {
		return []ClarificationQuestion{}
	}

	questions := make([]ClarificationQuestion, 0, len(raw))
	for _, q := range raw {
		if q.QuestionID == nil || q.QuestionText == nil || q.Options == nil {
			return []ClarificationQuestion{}
		}
		if len(q.Options) < 2 {
			return []ClarificationQuestion{}
		}
		questions = append(questions, ClarificationQuestion{
			QuestionID:   *q.QuestionID,
			QuestionText: *q.QuestionText,
			Options:      q.Options,
		})
	}

	return questions
}
