package statusapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-labs/mcp-datacenter/pkg/datacenter"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

func startAPI(t *testing.T) *httptest.Server {
	t.Helper()

	ct, st := mcp.NewInMemoryTransports()
	server := mcp.NewServer(&mcp.Implementation{Name: "alpha", Version: "0.0.1"}, nil)
	server.AddResource(&mcp.Resource{
		URI:      "test://alpha/info",
		Name:     "info",
		MIMEType: "text/plain",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{URI: req.Params.URI, Text: "ok"}},
		}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = server.Run(ctx, st) }()

	log := logging.NewWithWriter("test", io.Discard)
	mgr := datacenter.NewManager(nil, log)
	t.Cleanup(func() { _ = mgr.Close() })
	require.True(t, mgr.AddDataSource(context.Background(), "alpha",
		&datacenter.TransportLaunchSpec{Transport: ct}))

	ts := httptest.NewServer(New(mgr, log).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestLiveness(t *testing.T) {
	ts := startAPI(t)
	var body map[string]string
	getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSources(t *testing.T) {
	ts := startAPI(t)
	var body struct {
		Sources []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"sources"`
	}
	getJSON(t, ts.URL+"/v1/sources", &body)
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "alpha", body.Sources[0].Name)
	assert.Equal(t, "ready", body.Sources[0].State)
}

func TestHealth(t *testing.T) {
	ts := startAPI(t)
	var body struct {
		Health map[string]string `json:"health"`
	}
	getJSON(t, ts.URL+"/v1/health", &body)
	assert.Equal(t, "healthy", body.Health["alpha"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts := startAPI(t)
	resp, err := http.Post(ts.URL+"/v1/sources", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
