// Package backend implements the uniform capability set every data source
// variant exposes: connect, disconnect, resource and tool enumeration, and
// query execution. Concrete variants exist for relational databases, document
// stores, key-value stores, search clusters, and REST APIs; the Factory maps a
// configuration entry to the right one.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backend is the capability contract shared by every variant. A variant owns
// at most one native connection handle, bounded by Connect and Disconnect.
// Disconnect is idempotent. Caller-supplied queries never crash the variant:
// native driver failures come back as error-shaped ExecResults.
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	ListResources() []Resource
	ListTools() []Tool
	ReadResource(ctx context.Context, uri string) (string, error)
	Execute(ctx context.Context, tool string, args map[string]any) (*ExecResult, error)
}

// Resource is one queryable resource identifier together with its read
// handler. The set is built eagerly at construction time, each handler closed
// over its own identifier.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Read        func(ctx context.Context) (string, error)
}

// ToolArg describes one argument of a tool for schema generation.
type ToolArg struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Tool describes one callable operation of a variant.
type Tool struct {
	Name        string
	Description string
	Args        []ToolArg
}

// ExecResult is the uniform outcome of a tool execution. Read-only queries
// carry structured JSON in Content; mutating operations carry an
// affected-count message; failures carry the error text with IsError set.
type ExecResult struct {
	Content string
	IsError bool
}

func errorResult(err error) *ExecResult {
	return &ExecResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}
}

func jsonResult(v any) *ExecResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return &ExecResult{Content: string(data)}
}

// OpError describes a failure of one operation against one data source.
type OpError struct {
	Source    string
	Operation string
	Message   string
	Cause     error
}

func (e *OpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Source, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Source, e.Operation, e.Message)
}

func (e *OpError) Unwrap() error { return e.Cause }

func opErr(source, op, message string, cause error) *OpError {
	return &OpError{Source: source, Operation: op, Message: message, Cause: cause}
}

// resourceSet holds a variant's eagerly built resource entries.
type resourceSet struct {
	entries []Resource
}

func (s *resourceSet) add(r Resource) {
	s.entries = append(s.entries, r)
}

func (s *resourceSet) list() []Resource {
	out := make([]Resource, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *resourceSet) read(ctx context.Context, uri string) (string, error) {
	for _, r := range s.entries {
		if r.URI == uri {
			return r.Read(ctx)
		}
	}
	return "", fmt.Errorf("backend: unknown resource %q", uri)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
