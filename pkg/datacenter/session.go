package datacenter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SessionState tracks the lifecycle of one data source session.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateInitializing  SessionState = "initializing"
	StateReady         SessionState = "ready"
	StateFailed        SessionState = "failed"
	// StateClosed is terminal; no operation is valid afterwards.
	StateClosed SessionState = "closed"
)

// Session is the manager's handle to one running data source server: the
// spawned process, its pipes, and the initialized protocol session, all owned
// exclusively through the underlying client session.
type Session struct {
	name string

	mu      sync.Mutex
	state   SessionState
	session *mcp.ClientSession

	closeOnce sync.Once
	closeErr  error
}

func newSession(name string) *Session {
	return &Session{name: name, state: StateUninitialized}
}

// Name returns the data source name this session serves.
func (s *Session) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) beginInit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized {
		s.state = StateInitializing
	}
}

func (s *Session) attach(cs *mcp.ClientSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.session = cs
	s.state = StateReady
}

// fail moves the session to Failed unless it is already Closed.
func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = StateFailed
	}
}

// client returns the protocol session when the state admits calls.
func (s *Session) client() (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.session == nil {
		return nil, fmt.Errorf("datacenter: session %q is %s", s.name, s.state)
	}
	return s.session, nil
}

// noteError reacts to a call failure: timeouts and cancellations indicate the
// stream can no longer be trusted and fail the session; protocol-level errors
// from the backend leave it Ready.
func (s *Session) noteError(err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.fail()
	}
}

// Close kills the process and closes both pipes by closing the protocol
// session. Idempotent; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cs := s.session
		s.session = nil
		s.state = StateClosed
		s.mu.Unlock()
		if cs != nil {
			s.closeErr = cs.Close()
		}
	})
	return s.closeErr
}

// cleanupScope guarantees release-exactly-once for every resource entered
// into it, no matter how teardown is triggered.
type cleanupScope struct {
	mu      sync.Mutex
	entries []*scopeEntry
	closed  bool
}

type scopeEntry struct {
	once  sync.Once
	close func() error
}

// release runs the entry's close function exactly once.
func (e *scopeEntry) release() error {
	var err error
	e.once.Do(func() { err = e.close() })
	return err
}

func newCleanupScope() *cleanupScope {
	return &cleanupScope{}
}

// enter registers a close function. When the scope is already closed the
// function runs immediately so late registrations cannot leak.
func (c *cleanupScope) enter(close func() error) *scopeEntry {
	entry := &scopeEntry{close: close}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = entry.release()
		return entry
	}
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
	return entry
}

// close releases every entry in reverse registration order.
func (c *cleanupScope) close() error {
	c.mu.Lock()
	c.closed = true
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := entries[i].release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
