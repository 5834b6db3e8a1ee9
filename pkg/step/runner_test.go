package step

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepwire/stepwire/pkg/ws"
)

var stepUpgrader = websocket.Upgrader{}

// newEchoServer starts an echo endpoint and reports the headers of each
// upgrade request.
func newEchoServer(t *testing.T) (url string, headers <-chan http.Header) {
	t.Helper()
	headerChan := make(chan http.Header, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerChan <- r.Header.Clone()
		conn, err := stepUpgrader.Upgrade(w, r, nil)
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
	return "ws" + strings.TrimPrefix(srv.URL, "http"), headerChan
}

func TestRunStepEndToEnd(t *testing.T) {
	url, _ := newEchoServer(t)
	session := NewSession(WithBaseURL(url))

	open, err := session.RunStep(NewStep("open").Open("/").Build())
	require.NoError(t, err)
	assert.True(t, open.Success, "failure: %s", open.FailureInfo)
	assert.Equal(t, "websocket-open", open.StepType)

	echo, err := NewStep("echo ping").
		WriteAndRead("/").
		WithText("ping").
		WithTimeout(3*time.Second).
		Validate().
		AssertEqual("body", "ping").
		Run(session)
	require.NoError(t, err)
	assert.True(t, echo.Success, "failure: %s", echo.FailureInfo)
	assert.Equal(t, len("ping"), echo.ContentSize)
	assert.Greater(t, echo.Elapsed, time.Duration(0))

	closed, err := NewStep("close").
		Close("/").
		WithCloseStatus(1000).
		WithTimeout(3*time.Second).
		Validate().
		AssertEqual("status_code", 1000).
		Run(session)
	require.NoError(t, err)
	assert.True(t, closed.Success, "failure: %s", closed.FailureInfo)
}

func TestRunStepValidationFailure(t *testing.T) {
	url, _ := newEchoServer(t)
	session := NewSession(WithBaseURL(url))

	result, err := NewStep("mixed assertions").
		WriteAndRead("/").
		WithText("ping").
		Validate().
		AssertEqual("body", "pong", "expected the wrong echo").
		AssertEqual("status_code", 101).
		Run(session)
	require.NoError(t, err, "assertion failures must not escape as errors")

	assert.False(t, result.Success)
	assert.Contains(t, result.FailureInfo, "body eq pong")
	assert.Contains(t, result.FailureInfo, "expected the wrong echo")
	assert.NotContains(t, result.FailureInfo, "status_code")

	require.Len(t, result.Session.Validators, 2)
	assert.False(t, result.Session.Validators[0].Pass)
	assert.True(t, result.Session.Validators[1].Pass)
	assert.False(t, result.Session.Success)
}

func TestRunStepNetworkFailure(t *testing.T) {
	session := NewSession()

	result, err := session.RunStep(NewStep("bad open").Open("ws://127.0.0.1:1/nope").Build())
	require.NoError(t, err, "transport failures must not escape as errors")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.FailureInfo)
}

func TestRunStepStateFailure(t *testing.T) {
	session := NewSession()

	// Write without an open connection fails the step, not the run.
	result, err := session.RunStep(NewStep("premature write").Write("ws://127.0.0.1:1/").WithText("x").Build())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.FailureInfo, "not connected")
}

func TestRunStepContractError(t *testing.T) {
	session := NewSession()

	_, err := session.RunStep(NewStep("no payload").Write("/").Build())
	assert.ErrorIs(t, err, ws.ErrMissingPayload)

	_, err = session.RunStep(&Descriptor{Name: "bad op", Operation: ws.Operation(9)})
	assert.ErrorIs(t, err, ws.ErrUnknownOperation)
}

func TestRunStepHeaderHandling(t *testing.T) {
	url, headers := newEchoServer(t)
	frozen := time.UnixMilli(1700000123456)
	session := NewSession(
		WithBaseURL(url),
		WithRunID("abc123"),
		WithClock(func() time.Time { return frozen }),
	)

	result, err := NewStep("headers").
		Open("/").
		WithHeaders(map[string]string{
			":authority": "evil.example",
			"User-Agent": "stepwire-test",
			"X-Token":    "$token",
		}).
		WithVariables(map[string]any{"token": "tok-1"}).
		Run(session)
	require.NoError(t, err)
	require.True(t, result.Success, "failure: %s", result.FailureInfo)

	sent := <-headers
	assert.Empty(t, sent.Values(":authority"), "pseudo-headers must be stripped")
	assert.Equal(t, "stepwire-test", sent.Get("User-Agent"))
	assert.Equal(t, "tok-1", sent.Get("X-Token"))

	correlation := sent.Get(CorrelationHeader)
	assert.Regexp(t, regexp.MustCompile(`^HRUN-abc123-\d{6}$`), correlation)
	assert.Equal(t, "HRUN-abc123-123456", correlation)
}

func TestRunStepHooks(t *testing.T) {
	url, _ := newEchoServer(t)
	calls := []string{}
	session := NewSession(
		WithBaseURL(url),
		WithFunctions(map[string]any{
			"mint_token": func() string { calls = append(calls, "mint"); return "secret-7" },
			"cleanup":    func() bool { calls = append(calls, "cleanup"); return true },
		}),
	)

	// Hook-assigned variables land after the request fields are resolved,
	// so they feed validation, not the same step's payload.
	result, err := NewStep("hooks").
		WriteAndRead("/").
		WithText("ping").
		SetupHookAssign("${mint_token()}", "token").
		TeardownHook("${cleanup()}").
		Validate().
		AssertEqual("$token", "secret-7").
		AssertEqual("body", "ping").
		Run(session)
	require.NoError(t, err)
	assert.True(t, result.Success, "failure: %s", result.FailureInfo)
	assert.Equal(t, []string{"mint", "cleanup"}, calls)
}

func TestRunStepExtraction(t *testing.T) {
	url, _ := newEchoServer(t)
	session := NewSession(WithBaseURL(url))

	result, err := NewStep("extract").
		WriteAndRead("/").
		WithText(map[string]any{"token": "t-9", "n": 3}).
		Extract().
		WithPath("body.token", "token").
		WithPath("body.n", "count").
		Validate().
		AssertEqual("$token", "t-9").
		AssertGreaterThan("$count", 2).
		Run(session)
	require.NoError(t, err)
	assert.True(t, result.Success, "failure: %s", result.FailureInfo)
	assert.Equal(t, "t-9", result.ExportVars["token"])

	// Later steps observe earlier exports through the session bindings.
	assert.Equal(t, "t-9", session.Variables()["token"])

	followUp, err := NewStep("use export").
		WriteAndRead("/").
		WithText("token=$token").
		Validate().
		AssertEqual("body", "token=t-9").
		Run(session)
	require.NoError(t, err)
	assert.True(t, followUp.Success, "failure: %s", followUp.FailureInfo)
}

func TestRunStepNewConnection(t *testing.T) {
	url, headers := newEchoServer(t)
	session := NewSession(WithBaseURL(url))

	_, err := session.RunStep(NewStep("first").Open("/").Build())
	require.NoError(t, err)
	<-headers

	// Reusing the session keeps the cached connection: no new upgrade.
	_, err = session.RunStep(NewStep("reuse").WriteAndRead("/").WithText("x").Build())
	require.NoError(t, err)
	select {
	case <-headers:
		t.Fatal("cached connection should not re-dial")
	default:
	}

	// NewConnection discards the cached client; the open dials again.
	result, err := session.RunStep(NewStep("fresh").Open("/").NewConnection().Build())
	require.NoError(t, err)
	assert.True(t, result.Success, "failure: %s", result.FailureInfo)
	select {
	case <-headers:
	case <-time.After(time.Second):
		t.Fatal("expected a fresh upgrade request")
	}
}
