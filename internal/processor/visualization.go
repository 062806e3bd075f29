package processor

import (
	"strings"

	"github.com/cr360/cr360/internal/database"
)

// Visualization hint values
const (
	VisualizationTable         = "table"
	VisualizationLine          = "line"
	VisualizationBar           = "bar"
	VisualizationHorizontalBar = "horizontal_bar"
)

var (
	timeWords       = []string{"date", "month", "year", "quarter"}
	comparisonWords = []string{"region", "product", "segment"}
	aggregateMarks  = []string{"sum(", "avg(", "count("}
)

// SuggestVisualization picks a chart type from the SQL text and the result
// shape. The rules fire in a fixed order; a rule whose row-count guard fails
// falls through to the next rather than forcing a default.
func SuggestVisualization(sql string, results []database.Row) string {
	if len(results) == 0 {
		return VisualizationTable
	}

	numRows := len(results)
	numColumns := len(results[0].Columns())
	sqlLower := strings.ToLower(sql)

	if containsAny(sqlLower, timeWords) && numRows > 1 {
		return VisualizationLine
	}

	if containsAny(sqlLower, comparisonWords) {
		if numRows <= 10 {
			return VisualizationBar
		}
		if numRows <= 50 {
			return VisualizationHorizontalBar
		}
	}

	if containsAny(sqlLower, aggregateMarks) && numRows <= 10 {
		return VisualizationBar
	}

	if numRows > 50 || numColumns > 5 {
		return VisualizationTable
	}

	return VisualizationBar
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
