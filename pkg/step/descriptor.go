package step

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/stepwire/stepwire/pkg/ws"
)

// Hook is one lifecycle expression, optionally binding its result to a
// variable visible to subsequent hooks and validators.
type Hook struct {
	// Expression is resolved through the templating engine, e.g.
	// "${setup_env($base_url)}".
	Expression string `json:"expression" yaml:"expression"`

	// AssignVar, when set, receives the expression's result as a binding.
	AssignVar string `json:"assign_var,omitempty" yaml:"assign_var,omitempty"`
}

// UnmarshalYAML accepts either a bare expression string or a single-pair
// {var: expression} mapping.
func (h *Hook) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		h.AssignVar = ""
		return value.Decode(&h.Expression)
	}
	var pair map[string]string
	if err := value.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 1 {
		return fmt.Errorf("hook mapping must have exactly one {var: expression} pair, got %d", len(pair))
	}
	for name, expression := range pair {
		h.AssignVar = name
		h.Expression = expression
	}
	return nil
}

// MarshalYAML emits the compact forms accepted by UnmarshalYAML.
func (h Hook) MarshalYAML() (any, error) {
	if h.AssignVar == "" {
		return h.Expression, nil
	}
	return map[string]string{h.AssignVar: h.Expression}, nil
}

// Descriptor records one step's intended WebSocket exchange. Fields holding
// strings may contain $name / ${...} template expressions; they are
// resolved against the session bindings when the step runs. Treat a
// Descriptor as immutable once built.
type Descriptor struct {
	// Name labels the step in results and reports.
	Name string `json:"name" yaml:"name"`

	// Operation selects which protocol primitive runs.
	Operation ws.Operation `json:"operation" yaml:"operation"`

	// URL is the endpoint, absolute or relative to the session base URL.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Headers are sent with the opening handshake. Reserved pseudo-header
	// names (leading colon) are stripped before they reach the wire.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Text is the outgoing text payload; structured values are
	// JSON-encoded. Mutually exclusive with Binary.
	Text any `json:"text,omitempty" yaml:"text,omitempty"`

	// Binary is the outgoing binary payload. Mutually exclusive with Text.
	Binary []byte `json:"binary,omitempty" yaml:"binary,omitempty"`

	// TimeoutMS bounds the operation, in milliseconds. Zero means the
	// protocol defaults.
	TimeoutMS int64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// CloseStatus is the close-frame status code. Zero means 1000.
	CloseStatus int `json:"close_status,omitempty" yaml:"close_status,omitempty"`

	// NewConnection discards the session's cached client before dispatch.
	NewConnection bool `json:"new_connection,omitempty" yaml:"new_connection,omitempty"`

	// Variables are step-local overrides merged over the session bindings.
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`

	// SetupHooks run in order before the network call.
	SetupHooks []Hook `json:"setup_hooks,omitempty" yaml:"setup_hooks,omitempty"`

	// TeardownHooks run in order after the network call.
	TeardownHooks []Hook `json:"teardown_hooks,omitempty" yaml:"teardown_hooks,omitempty"`

	// Extract maps output names to response paths.
	Extract map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Validators are evaluated in order against the merged bindings.
	Validators []Assertion `json:"validate,omitempty" yaml:"validate,omitempty"`
}

// Validate checks the descriptor's caller contract before any I/O.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("step name is required")
	}
	if !d.Operation.Valid() {
		return fmt.Errorf("%w: %d", ws.ErrUnknownOperation, int(d.Operation))
	}
	if d.Text != nil && d.Binary != nil {
		return fmt.Errorf("step %q: text and binary payloads are mutually exclusive", d.Name)
	}
	switch d.Operation {
	case ws.OpWrite, ws.OpWriteAndRead:
		if d.Text == nil && d.Binary == nil {
			return fmt.Errorf("step %q: %w", d.Name, ws.ErrMissingPayload)
		}
	case ws.OpClose:
		if d.CloseStatus < 0 || d.CloseStatus >= 1<<16 {
			return fmt.Errorf("step %q: %w: %d", d.Name, ws.ErrInvalidCloseStatus, d.CloseStatus)
		}
	}
	return nil
}

// StepType returns the reported type tag, e.g. "websocket-write_and_read".
func (d *Descriptor) StepType() string {
	return "websocket-" + d.Operation.String()
}
