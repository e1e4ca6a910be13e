// Package logging provides the structured logger shared by the data center
// components. Instances are created explicitly and passed into constructors so
// that log output and lifecycle stay bound to the owning component instead of
// process-wide globals.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Fields carries arbitrary structured context attached to a log entry.
type Fields map[string]any

// Logger writes structured JSON entries to a single writer. It is safe for
// concurrent use; loggers derived via WithComponent share the writer and its
// lock.
type Logger struct {
	component string
	mu        *sync.Mutex
	out       io.Writer
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     Level  `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

// New returns a logger for the given component writing to stderr.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter returns a logger writing to w. Useful for tests and for
// processes whose stdout is a protocol stream.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{component: component, mu: &sync.Mutex{}, out: w}
}

// WithComponent returns a logger that shares the writer but reports a
// different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, mu: l.mu, out: l.out}
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Fields:    fields,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields Fields) { l.log(LevelDebug, msg, fields) }

// Info logs an informational message.
func (l *Logger) Info(msg string, fields Fields) { l.log(LevelInfo, msg, fields) }

// Warn logs a warning.
func (l *Logger) Warn(msg string, fields Fields) { l.log(LevelWarn, msg, fields) }

// Error logs an error message.
func (l *Logger) Error(msg string, fields Fields) { l.log(LevelError, msg, fields) }
