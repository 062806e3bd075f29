package processor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cr360/cr360/internal/database"
)

func makeRows(count, columns int) []database.Row {
	rows := make([]database.Row, 0, count)
	cols := make([]string, columns)
	for i := range cols {
		cols[i] = fmt.Sprintf("col_%d", i)
	}
	for i := 0; i < count; i++ {
		values := make([]interface{}, columns)
		for j := range values {
			values[j] = i
		}
		rows = append(rows, database.NewRow(cols, values))
	}
	return rows
}

func TestSuggestVisualization(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		rows    int
		columns int
		want    string
	}{
		{
			name: "no results always table",
			sql:  "SELECT as_of_date FROM computed_metrics",
			rows: 0, columns: 0,
			want: VisualizationTable,
		},
		{
			name: "time series becomes line",
			sql:  "SELECT as_of_date, delinquency_rate_30_plus FROM computed_metrics ORDER BY as_of_date",
			rows: 12, columns: 2,
			want: VisualizationLine,
		},
		{
			name: "time word with single row falls through to bar",
			sql:  "SELECT as_of_date, total_outstanding_balance FROM computed_metrics",
			rows: 1, columns: 2,
			want: VisualizationBar,
		},
		{
			name: "small regional breakdown is bar",
			sql:  "SELECT region_code, SUM(adjusted_eop_balance) FROM accounts GROUP BY region_code",
			rows: 4, columns: 2,
			want: VisualizationBar,
		},
		{
			name: "medium product breakdown is horizontal bar",
			sql:  "SELECT product_code, COUNT(*) FROM accounts GROUP BY product_code",
			rows: 25, columns: 2,
			want: VisualizationHorizontalBar,
		},
		{
			name: "large segment breakdown falls through to table",
			sql:  "SELECT customer_segment, account_id FROM accounts",
			rows: 80, columns: 2,
			want: VisualizationTable,
		},
		{
			name: "small aggregate is bar",
			sql:  "SELECT AVG(current_credit_score) FROM accounts",
			rows: 1, columns: 1,
			want: VisualizationBar,
		},
		{
			name: "wide result is table",
			sql:  "SELECT account_id, customer_id, balance, dpd, score, status FROM accounts",
			rows: 10, columns: 6,
			want: VisualizationTable,
		},
		{
			name: "many rows without keywords is table",
			sql:  "SELECT account_id FROM accounts",
			rows: 51, columns: 1,
			want: VisualizationTable,
		},
		{
			name: "small plain result defaults to bar",
			sql:  "SELECT account_id, balance FROM accounts LIMIT 5",
			rows: 5, columns: 2,
			want: VisualizationBar,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestVisualization(tt.sql, makeRows(tt.rows, tt.columns))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestVisualizationRuleOrder(t *testing.T) {
	// Time words win over comparison words when both appear
	sql := "SELECT as_of_date, region_code, SUM(adjusted_eop_balance) FROM accounts GROUP BY as_of_date, region_code"
	assert.Equal(t, VisualizationLine, SuggestVisualization(sql, makeRows(8, 3)))

	// With one row the time rule cannot fire; the comparison rule takes over
	assert.Equal(t, VisualizationBar, SuggestVisualization(sql, makeRows(1, 3)))
}
