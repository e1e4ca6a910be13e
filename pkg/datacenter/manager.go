// Package datacenter orchestrates many data source servers, each running as
// an independently spawned subprocess speaking the MCP request/response
// protocol over its stdio pipes. The Manager owns one Session per connected
// source, routes targeted calls, fans queries out across every session with
// per-source failure isolation, and guarantees that every process and pipe it
// ever acquired is released exactly once at teardown.
package datacenter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// Health values reported by HealthCheck.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Options configures a Manager.
type Options struct {
	// ClientName overrides the client name advertised during the initialize
	// handshake. When empty, the data source name is used.
	ClientName string
	// ClientVersion is the semantic version reported to servers.
	ClientVersion string
	// ConnectTimeout bounds spawn plus handshake for one source.
	ConnectTimeout time.Duration
	// CallTimeout bounds each request/response round trip.
	CallTimeout time.Duration
	// FanOutLimit caps concurrent per-source calls during fan-out
	// operations. Zero means no limit.
	FanOutLimit int
}

func (o *Options) normalized() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	return opts
}

// Manager owns the session map. All mutation happens through AddDataSource,
// RemoveDataSource and Close; fan-out operations work on a read-only snapshot.
type Manager struct {
	mu       sync.RWMutex
	opts     Options
	log      *logging.Logger
	sessions map[string]*Session
	order    []string
	scope    *cleanupScope
	closed   bool
}

// NewManager constructs an empty Manager logging through log.
func NewManager(opts *Options, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("datacenter")
	}
	return &Manager{
		opts:     opts.normalized(),
		log:      log,
		sessions: make(map[string]*Session),
		scope:    newCleanupScope(),
	}
}

// AddDataSource spawns and initializes a session for name. The session is
// entered into the manager's cleanup scope before the initialize handshake is
// attempted, so a handshake failure still tears down whatever was acquired.
// It reports success; a single source's failure is logged and never
// propagated. Adding a name that is already registered replaces the previous
// session (the old one is closed first).
func (m *Manager) AddDataSource(ctx context.Context, name string, spec LaunchSpec) bool {
	if spec == nil {
		m.log.Error("nil launch spec", logging.Fields{"source": name})
		return false
	}
	if old := m.unregister(name); old != nil {
		if err := old.Close(); err != nil {
			m.log.Warn("closing replaced session", logging.Fields{"source": name, "error": err.Error()})
		}
	}
	transport, err := spec.transport()
	if err != nil {
		m.log.Error("building transport", logging.Fields{"source": name, "error": err.Error()})
		return false
	}

	sess := newSession(name)
	entry := m.scope.enter(sess.Close)
	sess.beginInit()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    m.clientName(name),
		Version: m.opts.ClientVersion,
	}, nil)

	connectCtx, cancel := withTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	cs, err := client.Connect(connectCtx, transport, nil)
	if err != nil {
		sess.fail()
		if rerr := entry.release(); rerr != nil {
			m.log.Warn("releasing failed session", logging.Fields{"source": name, "error": rerr.Error()})
		}
		m.log.Error("failed to connect data source", logging.Fields{"source": name, "error": err.Error()})
		return false
	}

	sess.attach(cs)
	if !m.register(name, sess) {
		// Manager closed while we were connecting.
		_ = cs.Close()
		return false
	}
	go m.monitorSession(sess, cs)
	m.log.Info("connected data source", logging.Fields{"source": name})
	return true
}

// RemoveDataSource closes and forgets the named session. Removing an unknown
// name is a no-op.
func (m *Manager) RemoveDataSource(name string) error {
	sess := m.unregister(name)
	if sess == nil {
		return nil
	}
	return sess.Close()
}

// monitorSession marks the session failed once its stream terminates, so
// subsequent operations report the source instead of hanging on a dead pipe.
func (m *Manager) monitorSession(sess *Session, cs *mcp.ClientSession) {
	err := cs.Wait()
	sess.fail()
	if err != nil && sess.State() != StateClosed {
		m.log.Warn("session terminated", logging.Fields{"source": sess.Name(), "error": err.Error()})
	}
}

// Sources returns the registered source names in insertion order.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// HasSource reports whether name has a registered session, letting callers
// distinguish "no such source" from "source returned nothing".
func (m *Manager) HasSource(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[name]
	return ok
}

// SourceStates returns the lifecycle state of every registered session.
func (m *Manager) SourceStates() map[string]SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]SessionState, len(m.sessions))
	for name, sess := range m.sessions {
		out[name] = sess.State()
	}
	return out
}

// ResourceListing is one source's slice of a resource fan-out.
type ResourceListing struct {
	Resources []*mcp.Resource
	Err       error
}

// ListAllResources asks every session for its resources concurrently. The
// result has one entry per registered source; a source that fails contributes
// an entry with Err set rather than shortening the map.
func (m *Manager) ListAllResources(ctx context.Context) map[string]ResourceListing {
	results := make(map[string]ResourceListing)
	var mu sync.Mutex
	m.fanOut(ctx, "list_resources", func(ctx context.Context, op, name string, sess *Session) {
		resources, err := m.listResources(ctx, sess)
		if err != nil {
			m.log.Warn("list resources failed", logging.Fields{"op": op, "source": name, "error": err.Error()})
		}
		mu.Lock()
		results[name] = ResourceListing{Resources: resources, Err: err}
		mu.Unlock()
	})
	return results
}

// ToolListing is one source's slice of a tool fan-out.
type ToolListing struct {
	Tools []*mcp.Tool
	Err   error
}

// ListAllTools asks every session for its tools concurrently, with the same
// one-entry-per-source contract as ListAllResources.
func (m *Manager) ListAllTools(ctx context.Context) map[string]ToolListing {
	results := make(map[string]ToolListing)
	var mu sync.Mutex
	m.fanOut(ctx, "list_tools", func(ctx context.Context, op, name string, sess *Session) {
		tools, err := m.listTools(ctx, sess)
		if err != nil {
			m.log.Warn("list tools failed", logging.Fields{"op": op, "source": name, "error": err.Error()})
		}
		mu.Lock()
		results[name] = ToolListing{Tools: tools, Err: err}
		mu.Unlock()
	})
	return results
}

// HealthCheck probes every session with a cheap list-resources call and maps
// any failure to "unhealthy". It never returns an error.
func (m *Manager) HealthCheck(ctx context.Context) map[string]string {
	results := make(map[string]string)
	var mu sync.Mutex
	m.fanOut(ctx, "health_check", func(ctx context.Context, op, name string, sess *Session) {
		status := HealthHealthy
		if _, err := m.listResources(ctx, sess); err != nil {
			status = HealthUnhealthy
			m.log.Warn("health probe failed", logging.Fields{"op": op, "source": name, "error": err.Error()})
		}
		mu.Lock()
		results[name] = status
		mu.Unlock()
	})
	return results
}

// QueryResource reads one resource from the named source. Unknown sources and
// per-call failures both yield ok == false; use HasSource to tell them apart.
func (m *Manager) QueryResource(ctx context.Context, source, uri string) (string, bool) {
	sess := m.session(source)
	if sess == nil {
		m.log.Debug("unknown source", logging.Fields{"source": source})
		return "", false
	}
	content, err := m.readResource(ctx, sess, uri)
	if err != nil {
		m.log.Warn("read resource failed", logging.Fields{"source": source, "uri": uri, "error": err.Error()})
		return "", false
	}
	return content, true
}

// CallTool invokes a tool on the named source with the same routing and
// failure-isolation contract as QueryResource.
func (m *Manager) CallTool(ctx context.Context, source, tool string, args map[string]any) (*mcp.CallToolResult, bool) {
	sess := m.session(source)
	if sess == nil {
		m.log.Debug("unknown source", logging.Fields{"source": source})
		return nil, false
	}
	cs, err := sess.client()
	if err != nil {
		m.log.Warn("call tool failed", logging.Fields{"source": source, "tool": tool, "error": err.Error()})
		return nil, false
	}
	callCtx, cancel := withTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	res, err := cs.CallTool(callCtx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		sess.noteError(err)
		m.log.Warn("call tool failed", logging.Fields{"source": source, "tool": tool, "error": err.Error()})
		return nil, false
	}
	return res, true
}

// CrossSourceQuery applies QueryResource to each (source, uri) pair
// concurrently and returns the successful lookups only: failed or unknown
// sources are omitted, never present as empty entries.
func (m *Manager) CrossSourceQuery(ctx context.Context, queries map[string]string) map[string]string {
	op := uuid.NewString()
	m.log.Debug("fan-out", logging.Fields{"op": op, "operation": "cross_source_query", "sources": len(queries)})
	results := make(map[string]string)
	var mu sync.Mutex
	g := new(errgroup.Group)
	if m.opts.FanOutLimit > 0 {
		g.SetLimit(m.opts.FanOutLimit)
	}
	for source, uri := range queries {
		source, uri := source, uri
		g.Go(func() error {
			if content, ok := m.QueryResource(ctx, source, uri); ok {
				mu.Lock()
				results[source] = content
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// LaunchSpecBuilder produces the LaunchSpec used to start one data source's
// server process.
type LaunchSpecBuilder func(ds config.DataSource) LaunchSpec

// ConnectDataSources connects every enabled source in order and returns the
// names that connected. Individual failures are logged and skipped; the
// caller treats the run as successful when at least one source connected.
func (m *Manager) ConnectDataSources(ctx context.Context, sources []config.DataSource, build LaunchSpecBuilder) []string {
	var connected []string
	for _, ds := range sources {
		if !ds.Enabled {
			continue
		}
		m.log.Info("connecting data source", logging.Fields{"source": ds.Name, "type": ds.Type})
		if m.AddDataSource(ctx, ds.Name, build(ds)) {
			connected = append(connected, ds.Name)
		}
	}
	m.log.Info("connect pass finished", logging.Fields{
		"connected": strings.Join(connected, ","),
		"count":     len(connected),
	})
	return connected
}

// Close releases every process and pipe pair ever entered into the cleanup
// scope, including sessions that never finished initializing. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.sessions = make(map[string]*Session)
	m.order = nil
	m.mu.Unlock()
	return m.scope.close()
}

func (m *Manager) clientName(source string) string {
	if m.opts.ClientName != "" {
		return m.opts.ClientName
	}
	return source
}

func (m *Manager) register(name string, sess *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, exists := m.sessions[name]; !exists {
		m.order = append(m.order, name)
	}
	m.sessions[name] = sess
	return true
}

func (m *Manager) unregister(name string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[name]
	if !ok {
		return nil
	}
	delete(m.sessions, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return sess
}

func (m *Manager) session(name string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[name]
}

type namedSession struct {
	name string
	sess *Session
}

func (m *Manager) snapshot() []namedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]namedSession, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, namedSession{name: name, sess: m.sessions[name]})
	}
	return out
}

// fanOut runs fn once per registered session concurrently and joins all
// outcomes before returning. fn never aborts the group: per-source failures
// stay per-source. Every invocation of one fan-out shares a correlation id.
func (m *Manager) fanOut(ctx context.Context, operation string, fn func(ctx context.Context, op, name string, sess *Session)) {
	op := uuid.NewString()
	sessions := m.snapshot()
	m.log.Debug("fan-out", logging.Fields{"op": op, "operation": operation, "sources": len(sessions)})
	g := new(errgroup.Group)
	if m.opts.FanOutLimit > 0 {
		g.SetLimit(m.opts.FanOutLimit)
	}
	for _, ns := range sessions {
		ns := ns
		g.Go(func() error {
			fn(ctx, op, ns.name, ns.sess)
			return nil
		})
	}
	_ = g.Wait()
	m.log.Debug("fan-out done", logging.Fields{"op": op, "operation": operation})
}

func (m *Manager) listResources(ctx context.Context, sess *Session) ([]*mcp.Resource, error) {
	cs, err := sess.client()
	if err != nil {
		return nil, err
	}
	callCtx, cancel := withTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	res, err := cs.ListResources(callCtx, nil)
	if err != nil {
		sess.noteError(err)
		return nil, err
	}
	return res.Resources, nil
}

func (m *Manager) listTools(ctx context.Context, sess *Session) ([]*mcp.Tool, error) {
	cs, err := sess.client()
	if err != nil {
		return nil, err
	}
	callCtx, cancel := withTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	res, err := cs.ListTools(callCtx, nil)
	if err != nil {
		sess.noteError(err)
		return nil, err
	}
	return res.Tools, nil
}

func (m *Manager) readResource(ctx context.Context, sess *Session, uri string) (string, error) {
	cs, err := sess.client()
	if err != nil {
		return "", err
	}
	callCtx, cancel := withTimeout(ctx, m.opts.CallTimeout)
	defer cancel()
	res, err := cs.ReadResource(callCtx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		sess.noteError(err)
		return "", err
	}
	parts := make([]string, 0, len(res.Contents))
	for _, c := range res.Contents {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n"), nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
