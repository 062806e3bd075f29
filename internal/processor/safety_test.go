package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSQL(t *testing.T) {
	checker := NewSafetyChecker()

	tests := []struct {
		name       string
		sql        string
		wantValid  bool
		wantErrors []string
	}{
		{
			name:      "simple select passes",
			sql:       "SELECT as_of_date, total_outstanding_balance FROM computed_metrics",
			wantValid: true,
		},
		{
			name:      "lowercase select passes",
			sql:       "select region_code, sum(adjusted_eop_balance) from accounts group by region_code",
			wantValid: true,
		},
		{
			name:       "drop statement rejected on two rules",
			sql:        "DROP TABLE accounts",
			wantValid:  false,
			wantErrors: []string{"Dangerous keyword detected: DROP", "Query must be a SELECT statement"},
		},
		{
			name:       "delete rejected",
			sql:        "DELETE FROM accounts WHERE account_id = 'A-1'",
			wantValid:  false,
			wantErrors: []string{"Dangerous keyword detected: DELETE", "Query must be a SELECT statement"},
		},
		{
			name:       "embedded insert in select still rejected",
			sql:        "SELECT * FROM accounts; INSERT INTO accounts VALUES (1)",
			wantValid:  false,
			wantErrors: []string{"Dangerous keyword detected: INSERT"},
		},
		{
			name:       "column named updated_at trips the update rule",
			sql:        "SELECT account_id, updated_at FROM accounts",
			wantValid:  false,
			wantErrors: []string{"Dangerous keyword detected: UPDATE"},
		},
		{
			name:       "non-select statement rejected",
			sql:        "EXPLAIN SELECT 1",
			wantValid:  false,
			wantErrors: []string{"Query must be a SELECT statement"},
		},
		{
			name:       "empty input short-circuits",
			sql:        "",
			wantValid:  false,
			wantErrors: []string{"Failed to parse SQL"},
		},
		{
			name:       "whitespace-only input short-circuits",
			sql:        "   \n\t  ",
			wantValid:  false,
			wantErrors: []string{"Failed to parse SQL"},
		},
		{
			name: "multiple dangerous keywords each reported",
			sql:  "DROP TABLE a; TRUNCATE b; GRANT ALL ON c TO role",
			wantErrors: []string{
				"Dangerous keyword detected: DROP",
				"Dangerous keyword detected: TRUNCATE",
				"Dangerous keyword detected: GRANT",
				"Query must be a SELECT statement",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checker.ValidateSQL(tt.sql)
			assert.Equal(t, tt.wantValid, result.IsValid)
			if tt.wantValid {
				assert.Empty(t, result.Errors)
			} else {
				assert.Equal(t, tt.wantErrors, result.Errors)
			}
		})
	}
}

func TestValidateSQLAllowsSelectWithLeadingWhitespace(t *testing.T) {
	checker := NewSafetyChecker()

	result := checker.ValidateSQL("\n  SELECT 1")
	assert.True(t, result.IsValid)
}

func TestReformat(t *testing.T) {
	formatted := Reformat("select a,\n  b from accounts\twhere a > 1 group by a order by b limit 10")

	assert.Equal(t, "SELECT a, b FROM accounts WHERE a > 1 GROUP BY a ORDER BY b LIMIT 10", formatted)
}

func TestReformatEmptyInput(t *testing.T) {
	assert.Equal(t, "", Reformat("   "))
}
