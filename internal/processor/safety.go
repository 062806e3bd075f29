package processor

import (
	"fmt"
	"regexp"
	"strings"
)

// SafetyChecker validates generated SQL before execution. The checks are
// textual: a keyword blocklist, a SELECT-only shape rule, and a reformat
// pass as a weak syntax check. The blocklist is substring-based, so a
// column named updated_at trips the UPDATE check; the model is prompted
// to avoid such names and a false rejection is the safe failure mode.
type SafetyChecker struct {
	dangerousKeywords []string
}

// ValidationResult carries the validator verdict and every rule violation found
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

// NewSafetyChecker creates a safety checker with the standard blocklist
func NewSafetyChecker() *SafetyChecker {
	return &SafetyChecker{
		dangerousKeywords: []string{
			"DROP", "DELETE", "TRUNCATE", "ALTER", "CREATE",
			"INSERT", "UPDATE", "GRANT", "REVOKE",
		},
	}
}

// ValidateSQL checks a statement against all safety rules, accumulating one
// error per violated rule. An unparseable (empty) statement short-circuits.
func (sc *SafetyChecker) ValidateSQL(sql string) ValidationResult {
	errors := []string{}

	if !sc.parses(sql) {
		errors = append(errors, "Failed to parse SQL")
		return ValidationResult{IsValid: false, Errors: errors}
	}

	sqlUpper := strings.ToUpper(sql)
	for _, keyword := range sc.dangerousKeywords {
		if strings.Contains(sqlUpper, keyword) {
			errors = append(errors, fmt.Sprintf("Dangerous keyword detected: %s", keyword))
		}
	}

	if !strings.HasPrefix(strings.TrimSpace(sqlUpper), "SELECT") {
		errors = append(errors, "Query must be a SELECT statement")
	}

	if Reformat(sql) == "" {
		errors = append(errors, "SQL formatting failed - likely syntax error")
	}

	return ValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// parses is the tolerant parse step: any non-blank text yields at least one
// statement.
func (sc *SafetyChecker) parses(sql string) bool {
	return strings.TrimSpace(sql) != ""
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Reformat normalizes whitespace and uppercases leading keywords per line.
// It is a pretty-printer, not a grammar: its only validation value is that
// blank input produces blank output.
func Reformat(sql string) string {
	collapsed := whitespaceRun.ReplaceAllString(strings.TrimSpace(sql), " ")
	if collapsed == "" {
		return ""
	}

	keywords := []string{
		"select", "from", "where", "group by", "order by", "having", "limit",
	}
	formatted := collapsed
	for _, kw := range keywords {
		re := regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(kw, " ", `\s+`) + `\b`)
		formatted = re.ReplaceAllString(formatted, strings.ToUpper(kw))
	}

	return formatted
}
