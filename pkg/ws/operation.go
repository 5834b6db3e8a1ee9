package ws

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Operation identifies the single protocol action a step performs.
type Operation int

// Supported operations. Exactly one runs per step.
const (
	// OpOpen performs the WebSocket handshake and establishes the connection.
	OpOpen Operation = iota
	// OpPing sends a ping control frame on an established connection.
	OpPing
	// OpWrite sends exactly one data frame.
	OpWrite
	// OpRead performs one blocking receive.
	OpRead
	// OpWriteAndRead sends one frame, then performs one blocking receive.
	OpWriteAndRead
	// OpClose runs the close handshake and releases the connection.
	OpClose
)

var operationNames = map[Operation]string{
	OpOpen:         "open",
	OpPing:         "ping",
	OpWrite:        "write",
	OpRead:         "read",
	OpWriteAndRead: "write_and_read",
	OpClose:        "close",
}

// String returns the wire/config name of the operation.
func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}

// Valid reports whether op is one of the defined operations.
func (op Operation) Valid() bool {
	_, ok := operationNames[op]
	return ok
}

// ParseOperation maps a config string to an Operation.
// Short aliases "w", "r" and "wr" match the write, read and
// write_and_read operations.
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "open":
		return OpOpen, nil
	case "ping":
		return OpPing, nil
	case "write", "w":
		return OpWrite, nil
	case "read", "r":
		return OpRead, nil
	case "write_and_read", "wr":
		return OpWriteAndRead, nil
	case "close":
		return OpClose, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (op Operation) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperation, int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Operation) UnmarshalText(text []byte) error {
	parsed, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (op Operation) MarshalYAML() (any, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperation, int(op))
	}
	return op.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (op *Operation) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return op.UnmarshalText([]byte(s))
}
