package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cr360/cr360/internal/config"
	apperrors "github.com/cr360/cr360/internal/errors"
)

func TestQueryTable(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	var gotAPIKey, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"account_id": "A-1", "region_code": "NORTH"},
			{"account_id": "A-2", "region_code": "NORTH"},
		})
	}))
	defer server.Close()

	client := NewRESTClient(config.SupabaseConfig{URL: server.URL, APIKey: "svc-key"})

	rows, err := client.QueryTable(context.Background(), "accounts",
		[]string{"account_id", "region_code"},
		map[string]string{"region_code": "NORTH"},
		100)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A-1", rows[0]["account_id"])

	assert.Equal(t, "/rest/v1/accounts", gotPath)
	assert.Equal(t, []string{"account_id,region_code"}, gotQuery["select"])
	assert.Equal(t, []string{"eq.NORTH"}, gotQuery["region_code"])
	assert.Equal(t, []string{"100"}, gotQuery["limit"])
	assert.Equal(t, "svc-key", gotAPIKey)
	assert.Equal(t, "Bearer svc-key", gotAuth)
}

func TestQueryTableDefaultsToSelectAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Empty(t, r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer server.Close()

	client := NewRESTClient(config.SupabaseConfig{URL: server.URL})

	rows, err := client.QueryTable(context.Background(), "computed_metrics", nil, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQueryTableErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusForbidden)
	}))
	defer server.Close()

	client := NewRESTClient(config.SupabaseConfig{URL: server.URL})

	_, err := client.QueryTable(context.Background(), "accounts", nil, nil, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))
	assert.Contains(t, err.Error(), "403")
}

func TestQueryTableUnconfigured(t *testing.T) {
	client := NewRESTClient(config.SupabaseConfig{})

	_, err := client.QueryTable(context.Background(), "accounts", nil, nil, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))
}
