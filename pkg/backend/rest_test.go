package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
)

func newTestREST(t *testing.T, handler http.Handler) *rest {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.DataSource{
		Name:       "api",
		Type:       config.TypeREST,
		Connection: map[string]any{"base_url": srv.URL},
		Headers:    map[string]string{"X-Api-Key": "test-key"},
		Endpoints: []config.Endpoint{
			{Name: "status", Path: "/v1/status"},
		},
	}
	r, err := newREST(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	t.Cleanup(func() { _ = r.Disconnect(context.Background()) })
	return r
}

func TestRESTCallEndpoint(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "test-key", req.Header.Get("X-Api-Key"))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))

	res, err := r.Execute(context.Background(), "call_endpoint", map[string]any{"path": "/v1/status"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.JSONEq(t, `{"ok":true}`, res.Content)
}

func TestRESTPostWithBody(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		body, _ := io.ReadAll(req.Body)
		assert.JSONEq(t, `{"name":"x"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1}`)
	}))

	res, err := r.Execute(context.Background(), "call_endpoint", map[string]any{
		"path": "v1/items", "method": "post", "body": `{"name":"x"}`,
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.JSONEq(t, `{"id":1}`, res.Content)
}

func TestRESTNon2xxIsSoftError(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	res, err := r.Execute(context.Background(), "call_endpoint", map[string]any{"path": "/secret"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "403")
}

func TestRESTEndpointResource(t *testing.T) {
	r := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1/status", req.URL.Path)
		_, _ = io.WriteString(w, `{"status":"green"}`)
	}))

	out, err := r.ReadResource(context.Background(), "rest://api/endpoint/status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"green"}`, out)
}

func TestRESTRejectsBadBaseURL(t *testing.T) {
	cfg := &config.DataSource{
		Name:       "api",
		Type:       config.TypeREST,
		Connection: map[string]any{"base_url": "ftp://files.example.com"},
	}
	_, err := newREST(cfg, testLogger())
	assert.Error(t, err)
}

func TestRESTMissingPathArgument(t *testing.T) {
	r := newTestREST(t, http.NotFoundHandler())
	res, err := r.Execute(context.Background(), "call_endpoint", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
