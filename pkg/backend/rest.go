package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

const restMaxResponseSize = 10 << 20

// rest serves HTTP REST APIs. It is stateless: Connect only validates the
// base URL and prepares the client, no connection is held open.
type rest struct {
	cfg     *config.DataSource
	log     *logging.Logger
	baseURL string
	client  *http.Client

	resources resourceSet
}

func newREST(cfg *config.DataSource, log *logging.Logger) (*rest, error) {
	base := cfg.ConnString("base_url")
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, opErr(cfg.Name, "New", "invalid base_url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, opErr(cfg.Name, "New", "base_url must use http or https", nil)
	}
	r := &rest{
		cfg:     cfg,
		log:     log,
		baseURL: strings.TrimRight(base, "/"),
	}
	r.buildResources()
	return r, nil
}

func (r *rest) buildResources() {
	r.resources.add(Resource{
		URI:         fmt.Sprintf("rest://%s/endpoints", r.cfg.Name),
		Name:        "endpoints",
		Description: "Declared endpoints of this API",
		MIMEType:    "application/json",
		Read: func(ctx context.Context) (string, error) {
			return jsonResult(r.cfg.Endpoints).Content, nil
		},
	})
	for _, ep := range r.cfg.Endpoints {
		ep := ep
		r.resources.add(Resource{
			URI:         fmt.Sprintf("rest://%s/endpoint/%s", r.cfg.Name, ep.Name),
			Name:        "endpoint-" + ep.Name,
			Description: fmt.Sprintf("Response of %s", ep.Path),
			MIMEType:    "application/json",
			Read: func(ctx context.Context) (string, error) {
				return r.call(ctx, http.MethodGet, ep.Path, "")
			},
		})
	}
}

func (r *rest) Connect(ctx context.Context) error {
	timeout := time.Duration(r.cfg.SettingInt("timeout_seconds", 30)) * time.Second
	r.client = &http.Client{Timeout: timeout}
	r.log.Info("connected", logging.Fields{"source": r.cfg.Name, "base_url": r.baseURL})
	return nil
}

func (r *rest) Disconnect(ctx context.Context) error {
	r.client = nil
	return nil
}

func (r *rest) ListResources() []Resource { return r.resources.list() }

func (r *rest) ListTools() []Tool {
	return []Tool{{
		Name:        "call_endpoint",
		Description: "Call an API path directly",
		Args: []ToolArg{
			{Name: "path", Type: "string", Description: "Path relative to the base URL", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method, defaults to GET", Required: false},
			{Name: "body", Type: "string", Description: "Request body for write methods", Required: false},
		},
	}}
}

func (r *rest) ReadResource(ctx context.Context, uri string) (string, error) {
	return r.resources.read(ctx, uri)
}

func (r *rest) Execute(ctx context.Context, tool string, args map[string]any) (*ExecResult, error) {
	if tool != "call_endpoint" {
		return nil, fmt.Errorf("backend: unknown tool %q", tool)
	}
	path := stringArg(args, "path")
	if path == "" {
		return errorResult(fmt.Errorf("missing required argument \"path\"")), nil
	}
	method := strings.ToUpper(stringArg(args, "method"))
	if method == "" {
		method = http.MethodGet
	}
	out, err := r.call(ctx, method, path, stringArg(args, "body"))
	if err != nil {
		return errorResult(err), nil
	}
	return &ExecResult{Content: out}, nil
}

func (r *rest) call(ctx context.Context, method, path, body string) (string, error) {
	if r.client == nil {
		return "", opErr(r.cfg.Name, "Call", "not connected", nil)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return "", opErr(r.cfg.Name, "Call", "building request", err)
	}
	for k, v := range r.cfg.Headers {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", opErr(r.cfg.Name, "Call", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, restMaxResponseSize))
	if err != nil {
		return "", opErr(r.cfg.Name, "Call", "reading response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", opErr(r.cfg.Name, "Call", fmt.Sprintf("endpoint returned %s: %s", resp.Status, data), nil)
	}
	return string(data), nil
}
