package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a client's connection handle.
type State int

// Connection states. A handle moves Disconnected -> Connected via Open and
// Connected -> Closed via Close; no other transitions exist.
const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

// String returns a readable state name for logs.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// DefaultCloseTimeout bounds the close-handshake receive loop when the step
// does not supply its own timeout.
const DefaultCloseTimeout = 3 * time.Second

// DefaultCloseStatus is the normal-closure code sent when the step does not
// supply one.
const DefaultCloseStatus = websocket.CloseNormalClosure

// Options carries the per-operation inputs resolved from a step: handshake
// headers, the operation timeout, the outgoing payload, and the close status.
// Text and Binary are mutually exclusive; exactly one must be set for write
// operations.
type Options struct {
	// Header is sent with the opening handshake.
	Header http.Header

	// Timeout bounds the operation: the handshake for open, the read/write
	// deadline for data operations, and the receive loop for close.
	// Zero means no deadline (close falls back to DefaultCloseTimeout).
	Timeout time.Duration

	// Text is the outgoing text payload. Strings pass through, []byte is
	// decoded as UTF-8 text, maps and slices are JSON-encoded, anything
	// else is stringified.
	Text any

	// Binary is the outgoing binary payload.
	Binary []byte

	// CloseStatus is the status code sent in the close frame.
	// Zero means DefaultCloseStatus.
	CloseStatus int
}

// Client drives one WebSocket connection through discrete blocking
// operations. Not safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	state  State
	logger *slog.Logger

	// readWait is the deadline applied to each blocking receive. Close
	// temporarily overrides it for the handshake wait and restores it.
	readWait time.Duration

	statusCode int
	respHeader http.Header
	lastRaw    []byte
	lastBody   any
}

// NewClient returns a disconnected client. A nil logger disables logging.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Client{logger: logger}
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state
}

// StatusCode returns the HTTP status of the opening handshake, or the close
// status after the connection has been closed.
func (c *Client) StatusCode() int {
	return c.statusCode
}

// ResponseHeader returns the headers from the opening handshake response.
func (c *Client) ResponseHeader() http.Header {
	return c.respHeader
}

// Body returns the payload of the most recent read, either a JSON-decoded
// structure or the raw text.
func (c *Client) Body() any {
	return c.lastBody
}

// ContentSize returns the byte length of the most recent read payload.
func (c *Client) ContentSize() int {
	return len(c.lastRaw)
}

// Open performs the WebSocket handshake. On failure the handle stays
// Disconnected.
func (c *Client) Open(url string, opts Options) error {
	dialer := websocket.Dialer{HandshakeTimeout: opts.Timeout}
	conn, resp, err := dialer.Dial(url, opts.Header)
	if err != nil {
		if resp != nil {
			return connErr(OpOpen, url, fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode))
		}
		return connErr(OpOpen, url, err)
	}
	c.conn = conn
	c.state = StateConnected
	c.statusCode = resp.StatusCode
	c.respHeader = resp.Header
	return nil
}

// Ping sends one ping control frame. Requires Connected.
func (c *Client) Ping() error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, c.deadline()); err != nil {
		return connErr(OpPing, "", err)
	}
	return nil
}

// Write sends exactly one data frame, text or binary depending on which
// payload is set. Requires Connected.
func (c *Client) Write(opts Options) error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	messageType, payload, err := encodePayload(opts)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return connErr(OpWrite, "", err)
	}
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		return connErr(OpWrite, "", err)
	}
	return nil
}

// encodePayload selects the frame opcode and encodes the outgoing payload.
func encodePayload(opts Options) (int, []byte, error) {
	if opts.Text != nil {
		switch v := opts.Text.(type) {
		case string:
			return websocket.TextMessage, []byte(v), nil
		case []byte:
			return websocket.TextMessage, v, nil
		case map[string]any, []any:
			data, err := json.Marshal(v)
			if err != nil {
				return 0, nil, fmt.Errorf("encode text payload: %w", err)
			}
			return websocket.TextMessage, data, nil
		default:
			return websocket.TextMessage, fmt.Appendf(nil, "%v", v), nil
		}
	}
	if opts.Binary != nil {
		return websocket.BinaryMessage, opts.Binary, nil
	}
	return 0, nil, ErrMissingPayload
}

// Read performs one blocking receive and attempts to JSON-decode the
// payload, falling back to the raw text when decoding fails. Callers must
// accept either a decoded structure or the original string.
func (c *Client) Read() (any, error) {
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	if err := c.conn.SetReadDeadline(c.readDeadline()); err != nil {
		return nil, connErr(OpRead, "", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, connErr(OpRead, "", err)
	}
	c.lastRaw = data
	c.lastBody = decodePayload(data)
	return c.lastBody, nil
}

// decodePayload returns the JSON-decoded payload, or the raw text when the
// payload is not valid JSON. Malformed JSON deliberately passes through
// unchanged.
func decodePayload(data []byte) any {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data)
	}
	return decoded
}

// Close runs the close handshake: it validates the status code, sends a
// close frame carrying the 2-byte big-endian code, then waits up to timeout
// for the peer's close frame, discarding data frames in between. The
// returned code is the peer's status, or CloseAbnormalClosure (1006) when
// no close frame arrived in time or the handle was already released.
//
// Close is idempotent: on a Disconnected or Closed handle it performs no
// I/O. A status outside [0, 65536) is rejected before any network effect.
func (c *Client) Close(status int, timeout time.Duration) (int, error) {
	if status < 0 || status >= 1<<16 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCloseStatus, status)
	}
	if c.state != StateConnected {
		return websocket.CloseAbnormalClosure, nil
	}
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}

	// The handle is no longer usable for data operations from here on,
	// whatever the handshake outcome.
	c.state = StateClosed
	result := websocket.CloseAbnormalClosure
	deadline := time.Now().Add(timeout)

	message := websocket.FormatCloseMessage(status, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		c.logger.Debug("close frame write failed", "error", err)
	}

	// Wait for the peer's close frame. The handshake overrides the read
	// deadline directly on the transport; readWait, which every data read
	// derives its deadline from, stays untouched.
	if err := c.conn.SetReadDeadline(deadline); err == nil {
		for {
			_, _, err := c.conn.ReadMessage()
			if err == nil {
				// Data frame in flight before the peer's close; discard.
				continue
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				result = closeErr.Code
				switch {
				case result >= 3000 && result <= 4999:
					c.logger.Debug("peer close status", "status", result)
				case result != websocket.CloseNormalClosure:
					c.logger.Error("peer close status", "status", result)
				}
			}
			break
		}
	}

	// Best-effort transport shutdown; the connection is being discarded
	// regardless, so the error is intentionally ignored.
	_ = c.conn.Close()
	c.conn = nil

	c.statusCode = result
	return result, nil
}

// SendRequest is the single dispatch entry used by the step orchestrator.
// It maps the operation to the client primitives and applies the resolved
// timeout. Unrecognized operations fail with ErrUnknownOperation before any
// I/O.
func (c *Client) SendRequest(op Operation, url string, opts Options) error {
	if opts.Timeout > 0 {
		c.readWait = opts.Timeout
	}
	switch op {
	case OpOpen:
		return c.Open(url, opts)
	case OpPing:
		return c.Ping()
	case OpWrite:
		return c.Write(opts)
	case OpRead:
		_, err := c.Read()
		return err
	case OpWriteAndRead:
		if err := c.Write(opts); err != nil {
			return err
		}
		_, err := c.Read()
		return err
	case OpClose:
		status := opts.CloseStatus
		if status == 0 {
			status = DefaultCloseStatus
		}
		_, err := c.Close(status, opts.Timeout)
		return err
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOperation, int(op))
	}
}

// deadline converts the configured wait into an absolute write deadline.
func (c *Client) deadline() time.Time {
	if c.readWait <= 0 {
		return time.Now().Add(10 * time.Second)
	}
	return time.Now().Add(c.readWait)
}

// readDeadline converts the configured wait into an absolute read deadline.
// Zero wait means block indefinitely.
func (c *Client) readDeadline() time.Time {
	if c.readWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.readWait)
}
