package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cr360/cr360/internal/config"
	apperrors "github.com/cr360/cr360/internal/errors"
	"github.com/cr360/cr360/internal/observability"
)

// RESTClient reads tables through a PostgREST endpoint (Supabase style).
// It sits outside the core query pipeline, which always executes SQL
// directly; this accessor serves ad-hoc table reads.
type RESTClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *observability.Logger
}

// NewRESTClient creates a PostgREST client from the Supabase configuration
func NewRESTClient(cfg config.SupabaseConfig) *RESTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RESTClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  observability.NewLogger("database-rest"),
	}
}

// QueryTable fetches rows from a table with optional column projection,
// equality filters, and a row limit. Filters apply as PostgREST eq matches.
func (c *RESTClient) QueryTable(ctx context.Context, table string, columns []string, filters map[string]string, limit int) ([]map[string]interface{}, error) {
	if c.baseURL == "" {
		return nil, apperrors.New(apperrors.ErrCodeDatabase, "PostgREST endpoint not configured").
			WithSuggestion("Set SUPABASE_URL and SUPABASE_KEY to enable the REST accessor.")
	}

	params := url.Values{}
	if len(columns) > 0 {
		params.Set("select", strings.Join(columns, ","))
	} else {
		params.Set("select", "*")
	}
	for column, value := range filters {
		params.Set(column, "eq."+value)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(table), params.Encode())

	body, err := c.doRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	c.logger.Debug(ctx, "Table queried via REST", map[string]interface{}{
		"table":     table,
		"row_count": len(rows),
	})

	return rows, nil
}

func (c *RESTClient) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	observability.RecordDBMetrics("rest_query", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewDatabaseError(
			fmt.Errorf("PostgREST returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		)
	}

	return body, nil
}
