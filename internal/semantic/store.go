// Package semantic loads and serves the YAML semantic model: metric
// definitions and taxonomies, dimension hierarchies, business relationships
// and rules, and synonyms for natural-language matching.
package semantic

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/observability"
)

// Metric is a single metric definition annotated with its category
type Metric struct {
	Name        string   `json:"name" yaml:"-"`
	Category    string   `json:"category" yaml:"-"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Formula     string   `json:"formula,omitempty" yaml:"formula"`
	Synonyms    []string `json:"synonyms,omitempty" yaml:"synonyms"`
}

// Category groups metrics under a taxonomy heading, preserving document order
type Category struct {
	Name    string   `json:"name"`
	Metrics []Metric `json:"metrics"`
}

// Dimension is a dimension definition annotated with its name
type Dimension struct {
	Name   string   `json:"name" yaml:"-"`
	Column string   `json:"column,omitempty" yaml:"column"`
	Levels []string `json:"levels,omitempty" yaml:"levels"`
}

// Store loads and caches the semantic model document. The document is
// immutable after load; Reload discards the cache and re-reads the file.
// Loading is lazy on first access and not locked: concurrent first calls may
// each read the file once, which is harmless because load is idempotent.
type Store struct {
	path   string
	logger *observability.Logger

	root   *yaml.Node
	loaded bool
}

// NewStore creates a store reading from the given YAML file path
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: observability.NewLogger("semantic"),
	}
}

// Load reads and validates the semantic model from disk
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		observability.GetGlobalMetrics().Inc(observability.MetricContextLoadErrors, nil)
		return errors.NewContextLoadError(err, s.path)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		observability.GetGlobalMetrics().Inc(observability.MetricContextLoadErrors, nil)
		return errors.NewContextLoadError(err, s.path)
	}

	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		observability.GetGlobalMetrics().Inc(observability.MetricContextLoadErrors, nil)
		return errors.NewContextLoadError(fmt.Errorf("document is not a mapping"), s.path)
	}

	if mappingValue(root, "metrics") == nil {
		observability.GetGlobalMetrics().Inc(observability.MetricContextLoadErrors, nil)
		return errors.NewContextLoadError(fmt.Errorf("missing required sections in semantic model: [metrics]"), s.path)
	}

	s.root = root
	s.loaded = true

	categories, _ := s.Categories()
	dimensions, _ := s.Dimensions()
	s.logger.Info(context.Background(), "Semantic model loaded", map[string]interface{}{
		"path":             s.path,
		"categories_count": len(categories),
		"dimensions_count": len(dimensions),
	})

	return nil
}

// Reload forces a re-read of the model from disk, discarding the cache
func (s *Store) Reload() error {
	s.loaded = false
	s.root = nil
	observability.GetGlobalMetrics().Inc(observability.MetricContextReloads, nil)
	return s.Load()
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.Load()
}

// Categories returns all metric categories with their metrics in document order
func (s *Store) Categories() ([]Category, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	metricsNode := mappingValue(s.root, "metrics")
	var categories []Category

	forEachEntry(metricsNode, func(categoryName string, categoryNode *yaml.Node) {
		// Non-mapping category values carry no metric definitions
		if categoryNode.Kind != yaml.MappingNode {
			return
		}
		category := Category{Name: categoryName}
		forEachEntry(categoryNode, func(metricName string, metricNode *yaml.Node) {
			category.Metrics = append(category.Metrics, decodeMetric(categoryName, metricName, metricNode))
		})
		categories = append(categories, category)
	})

	return categories, nil
}

// Dimensions returns all dimension definitions in document order
func (s *Store) Dimensions() ([]Dimension, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	var dimensions []Dimension
	forEachEntry(mappingValue(s.root, "dimensions"), func(name string, node *yaml.Node) {
		dim := Dimension{Name: name}
		if node.Kind == yaml.MappingNode {
			_ = node.Decode(&dim)
			dim.Name = name
		}
		dimensions = append(dimensions, dim)
	})

	return dimensions, nil
}

// Relationships returns the business relationships section as a generic map
func (s *Store) Relationships() (map[string]interface{}, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	node := mappingValue(s.root, "relationships")
	if node == nil {
		return map[string]interface{}{}, nil
	}

	var relationships map[string]interface{}
	if err := node.Decode(&relationships); err != nil {
		return map[string]interface{}{}, nil
	}
	return relationships, nil
}

// BusinessRules returns the business rules section
func (s *Store) BusinessRules() ([]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	node := mappingValue(s.root, "business_rules")
	if node == nil {
		return []string{}, nil
	}

	var rules []string
	if err := node.Decode(&rules); err != nil {
		return []string{}, nil
	}
	return rules, nil
}

// FindMetricByName performs a case-insensitive exact lookup across all
// categories, returning the matched definition or false if not found
func (s *Store) FindMetricByName(name string) (Metric, bool, error) {
	categories, err := s.Categories()
	if err != nil {
		return Metric{}, false, err
	}

	for _, category := range categories {
		for _, metric := range category.Metrics {
			if strings.EqualFold(metric.Name, name) {
				return metric, true, nil
			}
		}
	}

	return Metric{}, false, nil
}

// FindDimensionByName performs a case-insensitive exact lookup of a dimension
func (s *Store) FindDimensionByName(name string) (Dimension, bool, error) {
	dimensions, err := s.Dimensions()
	if err != nil {
		return Dimension{}, false, err
	}

	for _, dim := range dimensions {
		if strings.EqualFold(dim.Name, name) {
			return dim, true, nil
		}
	}

	return Dimension{}, false, nil
}

// SearchBySynonym performs case-insensitive substring matching against metric
// names, declared synonyms, and descriptions. The three criteria are scanned
// as independent passes with no deduplication across them: a metric matching
// both its name and its description appears twice.
func (s *Store) SearchBySynonym(term string) ([]Metric, error) {
	categories, err := s.Categories()
	if err != nil {
		return nil, err
	}

	termLower := strings.ToLower(term)
	var matches []Metric

	for _, category := range categories {
		for _, metric := range category.Metrics {
			if strings.Contains(strings.ToLower(metric.Name), termLower) {
				matches = append(matches, metric)
			}
		}
	}

	for _, category := range categories {
		for _, metric := range category.Metrics {
			for _, synonym := range metric.Synonyms {
				if strings.Contains(strings.ToLower(synonym), termLower) {
					matches = append(matches, metric)
					break
				}
			}
		}
	}

	for _, category := range categories {
		for _, metric := range category.Metrics {
			if metric.Description != "" && strings.Contains(strings.ToLower(metric.Description), termLower) {
				matches = append(matches, metric)
			}
		}
	}

	return matches, nil
}

// RenderForPrompt serializes the full model back to YAML for LLM context
// injection, preserving key order from the source document
func (s *Store) RenderForPrompt() (string, error) {
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}

	out, err := yaml.Marshal(s.root)
	if err != nil {
		return "", errors.NewContextLoadError(err, s.path)
	}
	return string(out), nil
}

// RenderCompact emits a digest of metric and dimension names for lightweight prompts
func (s *Store) RenderCompact() (string, error) {
	categories, err := s.Categories()
	if err != nil {
		return "", err
	}
	dimensions, err := s.Dimensions()
	if err != nil {
		return "", err
	}

	lines := []string{"# Available Metrics\n"}
	for _, category := range categories {
		lines = append(lines, fmt.Sprintf("\n## %s", category.Name))
		for _, metric := range category.Metrics {
			lines = append(lines, fmt.Sprintf("  - %s", metric.Name))
		}
	}

	lines = append(lines, "\n\n# Available Dimensions\n")
	for _, dim := range dimensions {
		lines = append(lines, fmt.Sprintf("  - %s: %s", dim.Name, strings.Join(dim.Levels, ", ")))
	}

	return strings.Join(lines, "\n"), nil
}

// MetricCount returns the total number of metric definitions, for health reporting
func (s *Store) MetricCount() (int, error) {
	categories, err := s.Categories()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, category := range categories {
		count += len(category.Metrics)
	}
	return count, nil
}

func decodeMetric(category, name string, node *yaml.Node) Metric {
	metric := Metric{Name: name, Category: category}
	if node != nil && node.Kind == yaml.MappingNode {
		_ = node.Decode(&metric)
		metric.Name = name
		metric.Category = category
	}
	return metric
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func forEachEntry(node *yaml.Node, fn func(key string, value *yaml.Node)) {
	if node == nil || node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		fn(node.Content[i].Value, node.Content[i+1])
	}
}
