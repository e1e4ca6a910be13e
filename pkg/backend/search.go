package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// search serves Elasticsearch-style search clusters.
type search struct {
	cfg    *config.DataSource
	log    *logging.Logger
	addr   string
	client *elasticsearch.Client
	limit  int

	resources resourceSet
}

func newSearch(cfg *config.DataSource, log *logging.Logger) (*search, error) {
	if cfg.ConnString("host") == "" {
		return nil, opErr(cfg.Name, "New", "connection field \"host\" is required", nil)
	}
	addr, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}
	s := &search{
		cfg:   cfg,
		log:   log,
		addr:  addr,
		limit: cfg.SettingInt("max_hits", 100),
	}
	s.buildResources()
	return s, nil
}

func (s *search) buildResources() {
	s.resources.add(Resource{
		URI:         fmt.Sprintf("search://%s/indices", s.cfg.Name),
		Name:        "indices",
		Description: "Indices present in the cluster",
		MIMEType:    "application/json",
		Read: func(ctx context.Context) (string, error) {
			if s.client == nil {
				return "", opErr(s.cfg.Name, "Read", "not connected", nil)
			}
			res, err := s.client.Cat.Indices(
				s.client.Cat.Indices.WithContext(ctx),
				s.client.Cat.Indices.WithFormat("json"),
			)
			if err != nil {
				return "", opErr(s.cfg.Name, "Read", "listing indices", err)
			}
			return s.body(res, "Read")
		},
	})
	for _, index := range s.cfg.Indices {
		index := index
		s.resources.add(Resource{
			URI:         fmt.Sprintf("search://%s/index/%s", s.cfg.Name, index),
			Name:        "index-" + index,
			Description: fmt.Sprintf("First %d documents of index %s", s.limit, index),
			MIMEType:    "application/json",
			Read: func(ctx context.Context) (string, error) {
				return s.runSearch(ctx, index, `{"query":{"match_all":{}}}`, s.limit)
			},
		})
	}
}

func (s *search) Connect(ctx context.Context) error {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{s.addr},
		Username:  s.cfg.ConnString("username"),
		Password:  s.cfg.ConnString("password"),
	})
	if err != nil {
		return opErr(s.cfg.Name, "Connect", "building client", err)
	}
	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return opErr(s.cfg.Name, "Connect", "probing cluster", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return opErr(s.cfg.Name, "Connect", "cluster returned "+res.Status(), nil)
	}
	s.client = client
	s.log.Info("connected", logging.Fields{"source": s.cfg.Name, "address": s.addr})
	return nil
}

func (s *search) Disconnect(ctx context.Context) error {
	// The HTTP client holds no per-session server state.
	s.client = nil
	return nil
}

func (s *search) ListResources() []Resource { return s.resources.list() }

func (s *search) ListTools() []Tool {
	return []Tool{{
		Name:        "search",
		Description: "Run a query against one index",
		Args: []ToolArg{
			{Name: "index", Type: "string", Description: "Index to search", Required: true},
			{Name: "query", Type: "string", Description: "JSON query body", Required: false},
			{Name: "size", Type: "integer", Description: "Maximum hits to return", Required: false},
		},
	}}
}

func (s *search) ReadResource(ctx context.Context, uri string) (string, error) {
	return s.resources.read(ctx, uri)
}

func (s *search) Execute(ctx context.Context, tool string, args map[string]any) (*ExecResult, error) {
	if tool != "search" {
		return nil, fmt.Errorf("backend: unknown tool %q", tool)
	}
	index := stringArg(args, "index")
	if index == "" {
		return errorResult(fmt.Errorf("missing required argument \"index\"")), nil
	}
	if s.client == nil {
		return errorResult(opErr(s.cfg.Name, "Execute", "not connected", nil)), nil
	}
	query := stringArg(args, "query")
	if query == "" {
		query = `{"query":{"match_all":{}}}`
	}
	out, err := s.runSearch(ctx, index, query, intArg(args, "size", s.limit))
	if err != nil {
		return errorResult(err), nil
	}
	return &ExecResult{Content: out}, nil
}

func (s *search) runSearch(ctx context.Context, index, query string, size int) (string, error) {
	if s.client == nil {
		return "", opErr(s.cfg.Name, "Query", "not connected", nil)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(strings.NewReader(query)),
		s.client.Search.WithSize(size),
	)
	if err != nil {
		return "", opErr(s.cfg.Name, "Query", "search failed", err)
	}
	return s.body(res, "Query")
}

func (s *search) body(res *esapi.Response, op string) (string, error) {
	defer func() { _ = res.Body.Close() }()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", opErr(s.cfg.Name, op, "reading response", err)
	}
	if res.IsError() {
		return "", opErr(s.cfg.Name, op, fmt.Sprintf("cluster returned %s: %s", res.Status(), data), nil)
	}
	return string(data), nil
}
