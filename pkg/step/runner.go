package step

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stepwire/stepwire/internal/id"
	"github.com/stepwire/stepwire/pkg/parser"
	"github.com/stepwire/stepwire/pkg/ws"
)

// CorrelationHeader carries the per-request identifier used to match logged
// request/response pairs across systems.
const CorrelationHeader = "HRUN-Websocket-Request-ID"

// RunStep executes one step: resolve the descriptor's templated fields,
// run setup hooks, dispatch the protocol operation, run teardown hooks,
// extract and validate, and return the Result.
//
// Business-level failures (transport errors, failed assertions) are
// recorded on the Result and never returned as an error. The error return
// is reserved for contract violations: a malformed descriptor, an unknown
// operation, or an unresolvable template.
func (s *Session) RunStep(desc *Descriptor) (*Result, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	start := s.now()
	result := &Result{Name: desc.Name, StepType: desc.StepType()}

	// Step-local overrides win over session bindings.
	merged := make(map[string]any, len(s.variables)+len(desc.Variables))
	for name, value := range s.variables {
		merged[name] = value
	}
	for name, value := range desc.Variables {
		merged[name] = value
	}
	stepVars, err := s.parser.ParseVariables(merged)
	if err != nil {
		return nil, fmt.Errorf("step %q variables: %w", desc.Name, err)
	}

	url, header, opts, err := s.resolveRequest(desc, stepVars)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", desc.Name, err)
	}

	if desc.NewConnection {
		s.ResetClient()
	}
	client := s.Client()

	s.callHooks(desc.SetupHooks, stepVars, "setup")

	s.logger.Debug("websocket request",
		"step", desc.Name,
		"operation", desc.Operation.String(),
		"url", url,
		"headers", header,
		"text", opts.Text,
		"binary_len", len(opts.Binary),
		"timeout", opts.Timeout,
	)

	sendErr := client.SendRequest(desc.Operation, url, opts)
	if sendErr != nil && isContractError(sendErr) {
		return nil, fmt.Errorf("step %q: %w", desc.Name, sendErr)
	}

	resp := NewResponse(client, s.parser)
	result.ContentSize = resp.ContentSize

	s.logger.Debug("websocket response",
		"step", desc.Name,
		"status_code", resp.StatusCode,
		"body", resp.Body,
		"error", sendErr,
	)

	stepVars["response"] = resp.Document()

	s.callHooks(desc.TeardownHooks, stepVars, "teardown")

	if sendErr != nil {
		result.FailureInfo = sendErr.Error()
		result.Session = SessionData{Success: false}
		result.Elapsed = s.now().Sub(start)
		return result, nil
	}

	exports, err := resp.Extract(desc.Extract, stepVars)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", desc.Name, err)
	}
	result.ExportVars = exports
	for name, value := range exports {
		stepVars[name] = value
		s.variables[name] = value
	}

	validateErr := resp.Validate(desc.Validators, stepVars)
	var failure *ValidationFailure
	switch {
	case validateErr == nil:
		result.Success = true
	case errors.As(validateErr, &failure):
		result.FailureInfo = failure.Report()
	default:
		return nil, fmt.Errorf("step %q: %w", desc.Name, validateErr)
	}

	result.Session = SessionData{Success: result.Success, Validators: resp.ValidationResults()}
	result.Elapsed = s.now().Sub(start)
	return result, nil
}

// resolveRequest resolves the templated request fields and assembles the
// wire inputs: the final URL, the handshake header with pseudo-headers
// stripped and the correlation header injected, and the protocol options.
func (s *Session) resolveRequest(desc *Descriptor, stepVars map[string]any) (string, http.Header, ws.Options, error) {
	rawURL, err := s.parser.ParseString(desc.URL, stepVars)
	if err != nil {
		return "", nil, ws.Options{}, err
	}
	url := parser.BuildURL(s.baseURL, fmt.Sprintf("%v", rawURL))

	header := http.Header{}
	for name, value := range desc.Headers {
		// Pseudo-headers from HTTP/2-style schemes (":authority", ":path")
		// must not reach the WebSocket handshake.
		if strings.HasPrefix(name, ":") {
			continue
		}
		resolved, err := s.parser.ParseString(value, stepVars)
		if err != nil {
			return "", nil, ws.Options{}, err
		}
		header.Set(name, fmt.Sprintf("%v", resolved))
	}
	header.Set(CorrelationHeader, s.correlationID())

	text, err := s.parser.Parse(desc.Text, stepVars)
	if err != nil {
		return "", nil, ws.Options{}, err
	}

	opts := ws.Options{
		Header:      header,
		Timeout:     time.Duration(desc.TimeoutMS) * time.Millisecond,
		Text:        text,
		Binary:      desc.Binary,
		CloseStatus: desc.CloseStatus,
	}
	return url, header, opts, nil
}

// correlationID builds the correlation header value:
// "HRUN-<run-id>-<6-digit millisecond suffix>".
func (s *Session) correlationID() string {
	return fmt.Sprintf("HRUN-%s-%s", s.runID, id.MillisSuffix(s.now()))
}

// callHooks evaluates lifecycle hook expressions in order. A hook bound to
// a variable name makes its result visible to subsequent hooks and to
// validation. Hook failures are logged and skipped; they never abort the
// step.
func (s *Session) callHooks(hooks []Hook, stepVars map[string]any, phase string) {
	for _, hook := range hooks {
		value, err := s.parser.Parse(hook.Expression, stepVars)
		if err != nil {
			s.logger.Error("hook failed", "phase", phase, "hook", hook.Expression, "error", err)
			continue
		}
		s.logger.Debug("hook called", "phase", phase, "hook", hook.Expression)
		if hook.AssignVar != "" {
			stepVars[hook.AssignVar] = value
		}
	}
}

// isContractError reports whether a dispatch error is a caller contract
// violation rather than a transport failure.
func isContractError(err error) bool {
	return errors.Is(err, ws.ErrUnknownOperation) ||
		errors.Is(err, ws.ErrMissingPayload) ||
		errors.Is(err, ws.ErrInvalidCloseStatus)
}
