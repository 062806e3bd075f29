package llm

import (
	"fmt"
	"strings"
)

// historyTurnsInPrompt caps how many past exchanges are injected into the
// SQL synthesis prompt.
const historyTurnsInPrompt = 3

// sqlSystemInstruction encodes the two-tier routing policy: pre-aggregated
// portfolio metrics come from computed_metrics, breakdowns and drill-downs
// from accounts. Routing is prompt-enforced only; the validator downstream
// checks safety, not table choice.
const sqlSystemInstruction = `You are a SQL expert for credit risk analytics with TWO-TIER query routing capability.

DATABASE SCHEMA (Two Tables):

1. ` + "`accounts`" + ` table - Account-level granular data (1,141 rows)
   - Use for: Breakdowns, GROUP BY queries, account filters, drill-downs
   - Primary key: (account_id, as_of_date)
   - Key columns: product_code, region_code, customer_segment, adjusted_eop_balance, days_past_due

2. ` + "`computed_metrics`" + ` table - Pre-aggregated portfolio metrics (8 rows, one per quarter)
   - Use for: Portfolio totals, complex ratios, pre-calculated metrics
   - Primary key: as_of_date
   - Key columns: total_outstanding_balance, delinquency_rate_30_plus, net_charge_off_rate, ecl_coverage_ratio

CRITICAL ROUTING RULES:

Use ` + "`computed_metrics`" + ` when:
  - Query asks for "total", "overall", "portfolio-level" metric
  - Complex calculations like NCO rate, ECL coverage (annualization is error-prone)
  - No breakdown by product/region/segment needed
  - Example: "What is the total delinquency rate?"

Use ` + "`accounts`" + ` when:
  - Query needs GROUP BY (by product, region, segment, vintage)
  - Account-level filters (credit score ranges, customer_id, DPD buckets)
  - Drill-downs and breakdowns
  - Example: "What is the delinquency rate BY PRODUCT?"

IMPORTANT SQL PATTERNS:

Pattern 1 - Portfolio Total (use computed_metrics):
` + "```sql" + `
SELECT delinquency_rate_30_plus
FROM computed_metrics
WHERE as_of_date = (SELECT MAX(as_of_date) FROM computed_metrics)
` + "```" + `

Pattern 2 - Breakdown by Dimension (use accounts):
` + "```sql" + `
SELECT
  product_code,
  SUM(CASE WHEN days_past_due >= 30 THEN adjusted_eop_balance ELSE 0 END) /
  NULLIF(SUM(adjusted_eop_balance), 0) * 100 as delinquency_rate
FROM accounts
WHERE as_of_date = (SELECT MAX(as_of_date) FROM accounts)
GROUP BY product_code
ORDER BY delinquency_rate DESC
` + "```" + `

Pattern 3 - Account-Level Query (use accounts):
` + "```sql" + `
SELECT account_id, customer_id, current_credit_score, adjusted_eop_balance
FROM accounts
WHERE product_code = 'AUTO' AND current_credit_score < 650
  AND as_of_date = (SELECT MAX(as_of_date) FROM accounts)
ORDER BY adjusted_eop_balance DESC
LIMIT 100
` + "```" + `

CRITICAL PostgreSQL constraints:
- If using GROUP BY, every non-aggregated column in SELECT/ORDER BY MUST be in GROUP BY
- For simple portfolio totals with no dimensions, use computed_metrics (no GROUP BY needed)
- For "latest" date filtering, use WHERE with MAX() subquery, NOT ORDER BY + LIMIT
- Always use NULLIF(SUM(denominator), 0) for rate calculations to avoid division by zero

NEVER calculate complex ratios from accounts table if available in computed_metrics.
ALWAYS validate which table to use before generating SQL.

Output format:
` + "```sql" + `
[Your SQL query here]
` + "```" + `

Explanation: [Brief explanation including which table you chose and why]

Metrics used: [List of metrics from semantic model]
`

// ambiguitySystemInstruction asks the model to flag under-specified queries
// and emit structured clarification questions alongside the line-oriented
// reasons/suggestions lists.
const ambiguitySystemInstruction = `You are an expert at detecting ambiguous queries in credit risk analytics.

Analyze the user's query and determine if it's ambiguous based on:
1. Multiple possible metric interpretations
2. Missing time period
3. Missing aggregation level (product, region, etc.)
4. Unclear comparison dimensions

Output format (IMPORTANT: Include BOTH old format for backward compatibility AND new structured questions):

Ambiguous: [Yes/No]

Reasons:
- [Reason 1]
- [Reason 2]

Suggestions:
- [Suggestion 1]
- [Suggestion 2]

Questions:
[
  {
    "question_id": "unique_id_1",
    "question_text": "What type of charge-off do you mean?",
    "options": ["Gross charge-off", "Net charge-off"]
  },
  {
    "question_id": "unique_id_2",
    "question_text": "Which time period?",
    "options": ["Latest quarter", "Q4 2024", "Q3 2024", "All quarters"]
  }
]

CRITICAL RULES FOR QUESTIONS:
1. question_id should be short, snake_case identifier (e.g., "charge_off_type", "time_period", "balance_type", "metric_type")
2. question_text should be a clear question ending with "?"
3. options should be 2-5 concrete choices the user can select
4. Each question should resolve ONE ambiguity
5. If query has multiple ambiguities, create multiple questions
6. Options should be mutually exclusive within each question
7. Use JSON array format exactly as shown above
8. Common question IDs to use:
   - charge_off_type: for gross vs net charge-off
   - balance_type: for outstanding vs original balance
   - time_period: for missing quarters/dates
   - metric_type: for unclear metric selection
   - aggregation_level: for product, region, account level
`

// buildSQLPrompt assembles the synthesis prompt from the capped conversation
// history and the current query.
func buildSQLPrompt(query string, history []ConversationTurn) string {
	var parts []string

	if len(history) > 0 {
		parts = append(parts, "Previous conversation:")
		start := 0
		if len(history) > historyTurnsInPrompt {
			start = len(history) - historyTurnsInPrompt
		}
		for _, turn := range history[start:] {
			parts = append(parts, fmt.Sprintf("User: %s", turn.User))
			parts = append(parts, fmt.Sprintf("Assistant: %s", turn.Assistant))
		}
		parts = append(parts, "")
	}

	parts = append(parts, fmt.Sprintf("Current query: %s", query))

	return strings.Join(parts, "\n")
}

// AugmentQuery rewrites an ambiguous query with the user's clarification
// selections appended as a bracketed block. No model call is involved; on
// empty clarifications the original query is returned unchanged.
func AugmentQuery(originalQuery string, clarifications []ClarificationAnswer) string {
	if len(clarifications) == 0 {
		return originalQuery
	}

	lines := make([]string, 0, len(clarifications))
	for _, c := range clarifications {
		lines = append(lines, fmt.Sprintf("- For '%s': User selected '%s'", c.QuestionID, c.SelectedOption))
	}

	return fmt.Sprintf("%s\n\n[Clarifications provided by user:\n%s\n]", originalQuery, strings.Join(lines, "\n"))
}
