package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// newEchoServer starts a WebSocket server that echoes every data frame.
func newEchoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(messageType, message); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newSilentServer upgrades the connection and then never reads, so close
// frames are never answered.
func newSilentServer(t *testing.T) string {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newConnectedClient(t *testing.T, url string) *Client {
	t.Helper()
	client := NewClient(nil)
	require.NoError(t, client.Open(url, Options{Timeout: 5 * time.Second}))
	t.Cleanup(func() {
		if client.State() == StateConnected {
			_, _ = client.Close(DefaultCloseStatus, time.Second)
		}
	})
	return client
}

func TestOpen(t *testing.T) {
	client := newConnectedClient(t, newEchoServer(t))
	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, http.StatusSwitchingProtocols, client.StatusCode())
}

func TestOpenFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewClient(nil)
	err := client.Open("ws"+strings.TrimPrefix(srv.URL, "http"), Options{Timeout: time.Second})
	require.Error(t, err)
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateDisconnected, client.State())
}

func TestPrimitivesRequireConnection(t *testing.T) {
	client := NewClient(nil)
	assert.ErrorIs(t, client.Ping(), ErrNotConnected)
	assert.ErrorIs(t, client.Write(Options{Text: "x"}), ErrNotConnected)
	_, err := client.Read()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPing(t *testing.T) {
	client := newConnectedClient(t, newEchoServer(t))
	assert.NoError(t, client.Ping())
}

func TestWriteMissingPayload(t *testing.T) {
	client := newConnectedClient(t, newEchoServer(t))
	err := client.Write(Options{})
	assert.ErrorIs(t, err, ErrMissingPayload)

	// The rejected write must not have touched the connection.
	assert.Equal(t, StateConnected, client.State())
	require.NoError(t, client.Write(Options{Text: "still alive"}))
	body, err := client.Read()
	require.NoError(t, err)
	assert.Equal(t, "still alive", body)
}

func TestWriteTextVariants(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		expected any
	}{
		{"string", Options{Text: "hello"}, "hello"},
		{"bytes as text", Options{Text: []byte("hello")}, "hello"},
		{"map json-encoded", Options{Text: map[string]any{"a": 1}}, map[string]any{"a": float64(1)}},
		{"slice json-encoded", Options{Text: []any{"a", float64(2)}}, []any{"a", float64(2)}},
		{"int stringified", Options{Text: 42}, float64(42)},
		{"binary", Options{Binary: []byte("raw-bytes")}, "raw-bytes"},
	}

	url := newEchoServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newConnectedClient(t, url)
			require.NoError(t, client.Write(tt.opts))
			body, err := client.Read()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, body)
		})
	}
}

func TestReadLenientDecoding(t *testing.T) {
	url := newEchoServer(t)
	client := newConnectedClient(t, url)

	require.NoError(t, client.Write(Options{Text: `{"a":1}`}))
	body, err := client.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, body)

	require.NoError(t, client.Write(Options{Text: "not-json"}))
	body, err = client.Read()
	require.NoError(t, err)
	assert.Equal(t, "not-json", body)
	assert.Equal(t, len("not-json"), client.ContentSize())
}

func TestCloseHandshake(t *testing.T) {
	client := newConnectedClient(t, newEchoServer(t))

	status, err := client.Close(1000, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1000, status)
	assert.Equal(t, StateClosed, client.State())
	assert.Equal(t, 1000, client.StatusCode())
}

func TestCloseIdempotent(t *testing.T) {
	client := newConnectedClient(t, newEchoServer(t))
	_, err := client.Close(1000, 3*time.Second)
	require.NoError(t, err)

	// Second close performs no I/O and reports the abnormal sentinel.
	status, err := client.Close(1000, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, websocket.CloseAbnormalClosure, status)
}

func TestCloseDisconnected(t *testing.T) {
	client := NewClient(nil)
	status, err := client.Close(1000, time.Second)
	require.NoError(t, err)
	assert.Equal(t, websocket.CloseAbnormalClosure, status)
}

func TestCloseStatusRange(t *testing.T) {
	for _, status := range []int{-1, 65536, 1 << 20} {
		client := newConnectedClient(t, newEchoServer(t))
		_, err := client.Close(status, time.Second)
		assert.ErrorIs(t, err, ErrInvalidCloseStatus)

		// Rejected before any network effect: the handle is untouched.
		assert.Equal(t, StateConnected, client.State())
		require.NoError(t, client.Write(Options{Text: "ok"}))
	}

	// Range check comes before the connection-state check.
	disconnected := NewClient(nil)
	_, err := disconnected.Close(65536, time.Second)
	assert.ErrorIs(t, err, ErrInvalidCloseStatus)
}

func TestCloseTimeout(t *testing.T) {
	client := newConnectedClient(t, newSilentServer(t))
	client.readWait = 5 * time.Second

	start := time.Now()
	status, err := client.Close(1000, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, websocket.CloseAbnormalClosure, status)
	assert.Less(t, time.Since(start), 3*time.Second)

	// The configured wait survives the handshake's deadline override.
	assert.Equal(t, 5*time.Second, client.readWait)
}

func TestSendRequestDispatch(t *testing.T) {
	url := newEchoServer(t)
	client := NewClient(nil)

	require.NoError(t, client.SendRequest(OpOpen, url, Options{Timeout: 5 * time.Second}))
	require.NoError(t, client.SendRequest(OpWriteAndRead, url, Options{Text: "ping", Timeout: 5 * time.Second}))
	assert.Equal(t, "ping", client.Body())

	require.NoError(t, client.SendRequest(OpClose, url, Options{CloseStatus: 1000, Timeout: 3 * time.Second}))
	assert.Equal(t, 1000, client.StatusCode())
}

func TestSendRequestUnknownOperation(t *testing.T) {
	client := NewClient(nil)
	err := client.SendRequest(Operation(42), "ws://irrelevant", Options{})
	assert.ErrorIs(t, err, ErrUnknownOperation)
}
