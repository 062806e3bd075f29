package semantic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cr360/cr360/internal/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join("testdata", "semantic_model.yaml"))
}

func TestLoad(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Load())

	categories, err := store.Categories()
	require.NoError(t, err)
	require.Len(t, categories, 2)

	// Document order is preserved
	assert.Equal(t, "portfolio_metrics", categories[0].Name)
	assert.Equal(t, "account_metrics", categories[1].Name)
	assert.Equal(t, "total_outstanding_balance", categories[0].Metrics[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join("testdata", "does_not_exist.yaml"))

	err := store.Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextLoad))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics: [unclosed"), 0644))

	err := NewStore(path).Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextLoad))
}

func TestLoadMissingMetricsSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no_metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dimensions:\n  region:\n    levels: [NORTH]\n"), 0644))

	err := NewStore(path).Load()
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeContextLoad))
	assert.Contains(t, err.Error(), "metrics")
}

func TestLazyLoadOnFirstAccess(t *testing.T) {
	store := testStore(t)

	// No explicit Load; first accessor triggers it
	metric, found, err := store.FindMetricByName("Total_Outstanding_Balance")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "total_outstanding_balance", metric.Name)
	assert.Equal(t, "portfolio_metrics", metric.Category)
	assert.Equal(t, "SUM(adjusted_eop_balance)", metric.Formula)
}

func TestFindMetricByNameNotFound(t *testing.T) {
	store := testStore(t)

	_, found, err := store.FindMetricByName("nonexistent_metric")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindDimensionByName(t *testing.T) {
	store := testStore(t)

	dim, found, err := store.FindDimensionByName("REGION")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "region", dim.Name)
	assert.Equal(t, "region_code", dim.Column)
	assert.Equal(t, []string{"NORTH", "SOUTH", "EAST", "WEST"}, dim.Levels)

	_, found, err = store.FindDimensionByName("galaxy")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSearchBySynonym(t *testing.T) {
	store := testStore(t)

	matches, err := store.SearchBySynonym("delinquency")
	require.NoError(t, err)

	// Matches on name (delinquency_rate_30_plus) and again on its synonym
	// "delinquency rate": passes are independent, no cross-pass dedup.
	require.Len(t, matches, 2)
	assert.Equal(t, "delinquency_rate_30_plus", matches[0].Name)
	assert.Equal(t, "delinquency_rate_30_plus", matches[1].Name)
}

func TestSearchBySynonymDescriptionOnly(t *testing.T) {
	store := testStore(t)

	matches, err := store.SearchBySynonym("allowance over total")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ecl_coverage_ratio", matches[0].Name)
}

func TestSearchBySynonymCaseInsensitive(t *testing.T) {
	store := testStore(t)

	matches, err := store.SearchBySynonym("NCO RATE")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "net_charge_off_rate", matches[0].Name)
}

func TestSearchBySynonymNoMatch(t *testing.T) {
	store := testStore(t)

	matches, err := store.SearchBySynonym("weather forecast")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRenderForPrompt(t *testing.T) {
	store := testStore(t)

	rendered, err := store.RenderForPrompt()
	require.NoError(t, err)

	// Full document round-trips with key order intact
	assert.Contains(t, rendered, "metrics:")
	assert.Contains(t, rendered, "total_outstanding_balance:")
	assert.Contains(t, rendered, "business_rules:")
	assert.Less(t,
		strings.Index(rendered, "portfolio_metrics"),
		strings.Index(rendered, "account_metrics"))
}

func TestRenderCompact(t *testing.T) {
	store := testStore(t)

	compact, err := store.RenderCompact()
	require.NoError(t, err)

	assert.Contains(t, compact, "# Available Metrics")
	assert.Contains(t, compact, "## portfolio_metrics")
	assert.Contains(t, compact, "  - total_outstanding_balance")
	assert.Contains(t, compact, "# Available Dimensions")
	assert.Contains(t, compact, "  - region: NORTH, SOUTH, EAST, WEST")
	// Full definitions stay out of the compact form
	assert.NotContains(t, compact, "formula")
	assert.NotContains(t, compact, "SUM(")
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  a:\n    m1:\n      description: first\n"), 0644))

	store := NewStore(path)
	count, err := store.MetricCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  a:\n    m1:\n      description: first\n    m2:\n      description: second\n"), 0644))

	// Cached until reload
	count, err = store.MetricCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Reload())
	count, err = store.MetricCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBusinessRulesAndRelationships(t *testing.T) {
	store := testStore(t)

	rules, err := store.BusinessRules()
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Contains(t, rules[0], "computed_metrics")

	relationships, err := store.Relationships()
	require.NoError(t, err)
	assert.Contains(t, relationships, "accounts_to_metrics")
}
