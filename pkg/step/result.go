package step

import "time"

// SessionData is the embedded per-step snapshot consumed by reporting:
// aggregated success plus per-assertion results, passing ones included.
type SessionData struct {
	Success    bool              `json:"success"`
	Validators []AssertionResult `json:"validators,omitempty"`
}

// Result is the outcome record for one executed step. Success and
// FailureInfo are the only fields the surrounding runner needs to decide
// continue/retry/abort.
type Result struct {
	// Name is the step name from the descriptor.
	Name string `json:"name"`

	// StepType tags the operation, e.g. "websocket-write_and_read".
	StepType string `json:"step_type"`

	// Success is false whenever the network operation errored or any
	// assertion failed.
	Success bool `json:"success"`

	// Elapsed is the wall time of the whole step, hooks included.
	Elapsed time.Duration `json:"elapsed"`

	// ContentSize is the byte length of the last received payload.
	ContentSize int `json:"content_size"`

	// ExportVars holds the values extracted from the response.
	ExportVars map[string]any `json:"export_vars,omitempty"`

	// FailureInfo describes the failure; populated only when Success is
	// false.
	FailureInfo string `json:"failure_info,omitempty"`

	// Session is the per-step snapshot for reporting.
	Session SessionData `json:"session"`
}
