// Package adapter exposes one backend variant as an MCP server over stdio.
// The orchestrator spawns one adapter process per data source and drives it
// through the protocol's initialize handshake, resource reads, and tool calls.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-labs/mcp-datacenter/pkg/backend"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// Version is the protocol server version advertised during initialization.
const Version = "0.1.0"

// Server wraps one backend variant in an MCP server.
type Server struct {
	name    string
	backend backend.Backend
	server  *mcp.Server
	log     *logging.Logger
}

// New builds the MCP server for a backend, registering every resource and
// tool the variant declares.
func New(name string, b backend.Backend, log *logging.Logger) *Server {
	impl := &mcp.Implementation{Name: name, Version: Version}
	s := &Server{
		name:    name,
		backend: b,
		server:  mcp.NewServer(impl, nil),
		log:     log,
	}
	s.registerResources()
	s.registerTools()
	return s
}

// Run connects the backend, serves the protocol over stdio until ctx is
// cancelled or the peer closes the stream, then disconnects the backend.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve is Run with an explicit transport, for tests and embedding.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	if err := s.backend.Connect(ctx); err != nil {
		return fmt.Errorf("adapter: connecting %s: %w", s.name, err)
	}
	defer func() {
		if err := s.backend.Disconnect(context.Background()); err != nil {
			s.log.Warn("disconnect failed", logging.Fields{"source": s.name, "error": err.Error()})
		}
	}()
	s.log.Info("serving", logging.Fields{"source": s.name})
	return s.server.Run(ctx, t)
}

func (s *Server) registerResources() {
	for _, res := range s.backend.ListResources() {
		res := res
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MIMEType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := res.Read(ctx)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      req.Params.URI,
					MIMEType: res.MIMEType,
					Text:     text,
				}},
			}, nil
		})
	}
}

func (s *Server) registerTools() {
	for _, tool := range s.backend.ListTools() {
		tool := tool
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema(tool.Args),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var raw any
			if req.Params != nil {
				raw = req.Params.Arguments
			}
			args, err := decodeArgs(raw)
			if err != nil {
				return toolError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			res, err := s.backend.Execute(ctx, tool.Name, args)
			if err != nil {
				// Unknown tool or contract violation; surface as a soft failure.
				return toolError(err.Error()), nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: res.Content}},
				IsError: res.IsError,
			}, nil
		})
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func inputSchema(args []backend.ToolArg) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(args)),
	}
	for _, arg := range args {
		schema.Properties[arg.Name] = &jsonschema.Schema{
			Type:        arg.Type,
			Description: arg.Description,
		}
		if arg.Required {
			schema.Required = append(schema.Required, arg.Name)
		}
	}
	return schema
}

func decodeArgs(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	case json.RawMessage:
		if len(t) == 0 {
			return map[string]any{}, nil
		}
		var args map[string]any
		if err := json.Unmarshal(t, &args); err != nil {
			return nil, err
		}
		return args, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var args map[string]any
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, err
		}
		return args, nil
	}
}
