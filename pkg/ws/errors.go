package ws

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller contract violations. These are raised before
// any network I/O happens.
var (
	// ErrUnknownOperation indicates an operation tag outside the defined set.
	ErrUnknownOperation = errors.New("unknown websocket operation")

	// ErrNotConnected indicates a primitive that requires an established
	// connection was invoked while the client is disconnected or closed.
	ErrNotConnected = errors.New("websocket client is not connected")

	// ErrMissingPayload indicates a write with neither text nor binary set.
	ErrMissingPayload = errors.New("websocket write requires a text or binary payload")

	// ErrInvalidCloseStatus indicates a close status code outside [0, 65536).
	ErrInvalidCloseStatus = errors.New("close status code out of range [0, 65536)")
)

// ConnectionError wraps a handshake or transport failure during open, ping,
// write or read. The orchestrator records it on the step result instead of
// aborting the run.
type ConnectionError struct {
	Op  Operation
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("websocket %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("websocket %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func connErr(op Operation, url string, err error) error {
	return &ConnectionError{Op: op, URL: url, Err: err}
}
