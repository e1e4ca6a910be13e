package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
)

// newFakeCluster mimics the handful of cluster endpoints the variant touches.
func newFakeCluster(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch req.URL.Path {
		case "/":
			_, _ = io.WriteString(w, `{"version":{"number":"8.0.0"}}`)
		case "/_cat/indices":
			_, _ = io.WriteString(w, `[{"index":"products","docs.count":"3"}]`)
		case "/products/_search":
			_, _ = io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_source":{"sku":"A-1"}}]}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"no such index"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSearch(t *testing.T) *search {
	t.Helper()
	cluster := newFakeCluster(t)

	parsed, err := url.Parse(cluster.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	cfg := &config.DataSource{
		Name:       "catalog",
		Type:       config.TypeSearch,
		Connection: map[string]any{"host": parsed.Hostname(), "port": port},
		Indices:    []string{"products"},
	}
	s, err := newSearch(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestSearchTool(t *testing.T) {
	s := newTestSearch(t)

	res, err := s.Execute(context.Background(), "search", map[string]any{"index": "products"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "A-1")
}

func TestSearchMissingIndexArgument(t *testing.T) {
	s := newTestSearch(t)
	res, err := s.Execute(context.Background(), "search", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSearchClusterErrorIsSoft(t *testing.T) {
	s := newTestSearch(t)
	res, err := s.Execute(context.Background(), "search", map[string]any{"index": "missing"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "no such index")
}

func TestSearchIndicesResource(t *testing.T) {
	s := newTestSearch(t)
	out, err := s.ReadResource(context.Background(), "search://catalog/indices")
	require.NoError(t, err)
	assert.Contains(t, out, "products")
}

func TestSearchRequiresHost(t *testing.T) {
	cfg := &config.DataSource{
		Name:       "catalog",
		Type:       config.TypeSearch,
		Connection: map[string]any{"port": 9200},
	}
	_, err := newSearch(cfg, testLogger())
	assert.Error(t, err)
}

func TestSearchIndexResource(t *testing.T) {
	s := newTestSearch(t)
	out, err := s.ReadResource(context.Background(), "search://catalog/index/products")
	require.NoError(t, err)
	assert.Contains(t, out, "A-1")
}
