package step

import (
	"io"
	"log/slog"
	"time"

	"github.com/stepwire/stepwire/internal/id"
	"github.com/stepwire/stepwire/pkg/parser"
	"github.com/stepwire/stepwire/pkg/ws"
)

// Session is the execution context for one run: the variable bindings, the
// callable functions mapping, and the connection cache. A Session and its
// client must not be shared across concurrent executions; parallel runs
// require separate sessions.
type Session struct {
	runID     string
	baseURL   string
	variables map[string]any
	logger    *slog.Logger
	parser    *parser.Parser

	// client is created lazily on first use within the run and reused
	// across steps unless a step requests a fresh connection.
	client *ws.Client

	// now is swappable so correlation-header tests can freeze the clock.
	now func() time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRunID overrides the generated run identifier.
func WithRunID(runID string) SessionOption {
	return func(s *Session) { s.runID = runID }
}

// WithBaseURL sets the base URL that relative step URLs resolve against.
func WithBaseURL(baseURL string) SessionOption {
	return func(s *Session) { s.baseURL = baseURL }
}

// WithVariables seeds the session bindings.
func WithVariables(vars map[string]any) SessionOption {
	return func(s *Session) {
		for name, value := range vars {
			s.variables[name] = value
		}
	}
}

// WithFunctions registers the callable functions mapping used by ${...}
// expressions in templates, hooks and validators.
func WithFunctions(functions map[string]any) SessionOption {
	return func(s *Session) { s.parser = parser.New(functions) }
}

// WithLogger sets the logger for request/response trace records.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the session clock.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession creates an execution context with a generated run ID.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		runID:     id.Run(),
		variables: make(map[string]any),
		logger:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)})),
		parser:    parser.New(nil),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID returns the run identifier carried in correlation headers.
func (s *Session) RunID() string {
	return s.runID
}

// Variables returns the live session bindings. Extracted values from
// completed steps are merged in, so later steps observe earlier exports.
func (s *Session) Variables() map[string]any {
	return s.variables
}

// Client returns the session's protocol client, creating it on first use.
func (s *Session) Client() *ws.Client {
	if s.client == nil {
		s.client = ws.NewClient(s.logger)
	}
	return s.client
}

// ResetClient discards the cached client so the next step dials a fresh
// connection. An established connection is shut down best-effort first.
func (s *Session) ResetClient() {
	if s.client != nil && s.client.State() == ws.StateConnected {
		_, _ = s.client.Close(ws.DefaultCloseStatus, ws.DefaultCloseTimeout)
	}
	s.client = nil
}
