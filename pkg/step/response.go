package step

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/stepwire/stepwire/pkg/parser"
	"github.com/stepwire/stepwire/pkg/ws"
)

// Response wraps the protocol client's state after a step's network call
// for extraction and validation. Paths address a composite document with
// the fields "status_code", "headers" and "body".
type Response struct {
	StatusCode  int
	Headers     map[string]any
	Body        any
	ContentSize int

	parser *parser.Parser

	// validationResults accumulates per-assertion pass/fail detail for the
	// session snapshot, including passing assertions.
	validationResults []AssertionResult
}

// NewResponse snapshots the client state into a response wrapper.
func NewResponse(client *ws.Client, p *parser.Parser) *Response {
	headers := make(map[string]any)
	for name, values := range client.ResponseHeader() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	return &Response{
		StatusCode:  client.StatusCode(),
		Headers:     headers,
		Body:        client.Body(),
		ContentSize: client.ContentSize(),
		parser:      p,
	}
}

// Document returns the composite value that extraction and validation paths
// are evaluated against.
func (r *Response) Document() map[string]any {
	return map[string]any{
		"status_code": r.StatusCode,
		"headers":     r.Headers,
		"body":        r.Body,
	}
}

// Extract evaluates each declared path against the response and returns the
// output-name to value mapping. Paths that match nothing yield nil rather
// than failing the step.
func (r *Response) Extract(extractors map[string]string, vars map[string]any) (map[string]any, error) {
	if len(extractors) == 0 {
		return map[string]any{}, nil
	}
	exports := make(map[string]any, len(extractors))
	for name, path := range extractors {
		value, err := r.search(path, vars)
		if err != nil {
			return nil, fmt.Errorf("extract %q: %w", name, err)
		}
		exports[name] = value
	}
	return exports, nil
}

// search resolves one check/extract target: a template expression when it
// contains $, otherwise a JSONPath into the response document.
func (r *Response) search(path string, vars map[string]any) (any, error) {
	if strings.Contains(path, "$") && !strings.HasPrefix(path, "$.") && !strings.HasPrefix(path, "$[") {
		return r.parser.ParseString(path, vars)
	}
	expr, err := jp.ParseString(normalizePath(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	results := expr.Get(r.Document())
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

// normalizePath roots bare dotted paths, so "body.a" and "$.body.a" are
// equivalent.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "$") {
		return path
	}
	return "$." + path
}

// Validate evaluates every assertion against the merged bindings and the
// response. On any mismatch it returns a ValidationFailure carrying the
// formatted multi-assertion report; per-assertion detail is recorded either
// way and available via ValidationResults.
func (r *Response) Validate(asserts []Assertion, vars map[string]any) error {
	r.validationResults = r.validationResults[:0]
	failed := false
	for _, assertion := range asserts {
		result := r.evaluateAssertion(assertion, vars)
		r.validationResults = append(r.validationResults, result)
		if !result.Pass {
			failed = true
		}
	}
	if failed {
		failure := &ValidationFailure{}
		failure.Results = append(failure.Results, r.validationResults...)
		return failure
	}
	return nil
}

// ValidationResults returns the per-assertion detail from the last Validate
// call, passing assertions included.
func (r *Response) ValidationResults() []AssertionResult {
	return r.validationResults
}

func (r *Response) evaluateAssertion(assertion Assertion, vars map[string]any) AssertionResult {
	if assertion.Expression != "" {
		return r.evaluateExpression(assertion, vars)
	}

	result := AssertionResult{
		Check:      assertion.Check,
		Comparator: assertion.Comparator,
		Expect:     assertion.Expect,
		Message:    assertion.Message,
	}
	if result.Comparator == "" {
		result.Comparator = "eq"
	}

	compare, ok := comparators[result.Comparator]
	if !ok {
		result.Error = fmt.Sprintf("unknown comparator %q", result.Comparator)
		return result
	}

	actual, err := r.search(assertion.Check, vars)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Actual = actual

	expect, err := r.parser.Parse(assertion.Expect, vars)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Expect = expect

	pass, err := compare(actual, expect)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Pass = pass
	return result
}

func (r *Response) evaluateExpression(assertion Assertion, vars map[string]any) AssertionResult {
	result := AssertionResult{
		Check:      assertion.Expression,
		Comparator: "expression",
		Message:    assertion.Message,
	}

	env := make(map[string]any, len(vars)+3)
	for name, value := range vars {
		env[name] = value
	}
	for name, value := range r.Document() {
		env[name] = value
	}

	value, err := r.parser.Evaluate(assertion.Expression, env)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Actual = value
	pass, ok := value.(bool)
	if !ok {
		result.Error = fmt.Sprintf("expression yielded %T, want bool", value)
		return result
	}
	result.Pass = pass
	return result
}
