package step

import (
	"time"

	"github.com/stepwire/stepwire/pkg/ws"
)

// Builder accumulates a step descriptor fluently. Requesting extraction or
// validation narrows the builder to a restricted stage that forbids further
// structural edits; the narrowing is enforced by the stage types, not by
// runtime checks.
//
//	desc := step.NewStep("login").
//		WriteAndRead("/ws/login").
//		WithText(`{"user": "$user"}`).
//		Extract().
//		WithPath("body.token", "token").
//		Validate().
//		AssertEqual("status_code", 101, "handshake accepted").
//		Build()
type Builder struct {
	step *Descriptor
}

// NewStep starts a builder for a named step.
func NewStep(name string) *Builder {
	return &Builder{step: &Descriptor{Name: name}}
}

// Open configures the step to establish a connection to url.
func (b *Builder) Open(url string) *Builder {
	b.step.Operation = ws.OpOpen
	b.step.URL = url
	return b
}

// Ping configures the step to send a ping frame.
func (b *Builder) Ping(url string) *Builder {
	b.step.Operation = ws.OpPing
	b.step.URL = url
	return b
}

// Write configures the step to send one data frame.
func (b *Builder) Write(url string) *Builder {
	b.step.Operation = ws.OpWrite
	b.step.URL = url
	return b
}

// Read configures the step to perform one blocking receive.
func (b *Builder) Read(url string) *Builder {
	b.step.Operation = ws.OpRead
	b.step.URL = url
	return b
}

// WriteAndRead configures the step to send one frame and then receive one.
func (b *Builder) WriteAndRead(url string) *Builder {
	b.step.Operation = ws.OpWriteAndRead
	b.step.URL = url
	return b
}

// Close configures the step to run the close handshake.
func (b *Builder) Close(url string) *Builder {
	b.step.Operation = ws.OpClose
	b.step.URL = url
	return b
}

// WithVariables merges step-local variable overrides.
func (b *Builder) WithVariables(vars map[string]any) *Builder {
	if b.step.Variables == nil {
		b.step.Variables = make(map[string]any, len(vars))
	}
	for name, value := range vars {
		b.step.Variables[name] = value
	}
	return b
}

// WithHeaders merges handshake headers.
func (b *Builder) WithHeaders(headers map[string]string) *Builder {
	if b.step.Headers == nil {
		b.step.Headers = make(map[string]string, len(headers))
	}
	for name, value := range headers {
		b.step.Headers[name] = value
	}
	return b
}

// WithText sets the outgoing text payload.
func (b *Builder) WithText(text any) *Builder {
	b.step.Text = text
	return b
}

// WithBinary sets the outgoing binary payload.
func (b *Builder) WithBinary(binary []byte) *Builder {
	b.step.Binary = binary
	return b
}

// WithTimeout bounds the step's network operation.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.step.TimeoutMS = timeout.Milliseconds()
	return b
}

// WithCloseStatus sets the close-frame status code.
func (b *Builder) WithCloseStatus(status int) *Builder {
	b.step.CloseStatus = status
	return b
}

// NewConnection requests a fresh connection instead of the session's cached
// one.
func (b *Builder) NewConnection() *Builder {
	b.step.NewConnection = true
	return b
}

// SetupHook appends a setup hook expression.
func (b *Builder) SetupHook(hook string) *Builder {
	b.step.SetupHooks = append(b.step.SetupHooks, Hook{Expression: hook})
	return b
}

// SetupHookAssign appends a setup hook whose result is bound to varName.
func (b *Builder) SetupHookAssign(hook, varName string) *Builder {
	b.step.SetupHooks = append(b.step.SetupHooks, Hook{Expression: hook, AssignVar: varName})
	return b
}

// TeardownHook appends a teardown hook expression.
func (b *Builder) TeardownHook(hook string) *Builder {
	b.step.TeardownHooks = append(b.step.TeardownHooks, Hook{Expression: hook})
	return b
}

// TeardownHookAssign appends a teardown hook whose result is bound to
// varName.
func (b *Builder) TeardownHookAssign(hook, varName string) *Builder {
	b.step.TeardownHooks = append(b.step.TeardownHooks, Hook{Expression: hook, AssignVar: varName})
	return b
}

// Extract narrows the builder to the extraction stage.
func (b *Builder) Extract() *ExtractionBuilder {
	return &ExtractionBuilder{step: b.step}
}

// Validate narrows the builder to the validation stage.
func (b *Builder) Validate() *ValidationBuilder {
	return &ValidationBuilder{step: b.step}
}

// WithPath declares an extraction and narrows to the extraction stage.
func (b *Builder) WithPath(path, name string) *ExtractionBuilder {
	return b.Extract().WithPath(path, name)
}

// Build returns the accumulated descriptor.
func (b *Builder) Build() *Descriptor {
	return b.step
}

// Run executes the step against a session.
func (b *Builder) Run(s *Session) (*Result, error) {
	return s.RunStep(b.step)
}

// ExtractionBuilder only accepts extraction declarations; the structural
// setters are gone by construction.
type ExtractionBuilder struct {
	step *Descriptor
}

// WithPath records path's value under the output name.
func (b *ExtractionBuilder) WithPath(path, name string) *ExtractionBuilder {
	if b.step.Extract == nil {
		b.step.Extract = make(map[string]string)
	}
	b.step.Extract[name] = path
	return b
}

// Validate narrows to the validation stage.
func (b *ExtractionBuilder) Validate() *ValidationBuilder {
	return &ValidationBuilder{step: b.step}
}

// Build returns the accumulated descriptor.
func (b *ExtractionBuilder) Build() *Descriptor {
	return b.step
}

// Run executes the step against a session.
func (b *ExtractionBuilder) Run(s *Session) (*Result, error) {
	return s.RunStep(b.step)
}

// ValidationBuilder only accepts assertions.
type ValidationBuilder struct {
	step *Descriptor
}

func (b *ValidationBuilder) assert(check, comparator string, expect any, message []string) *ValidationBuilder {
	assertion := Assertion{Check: check, Comparator: comparator, Expect: expect}
	if len(message) > 0 {
		assertion.Message = message[0]
	}
	b.step.Validators = append(b.step.Validators, assertion)
	return b
}

// AssertEqual asserts the checked value equals expect.
func (b *ValidationBuilder) AssertEqual(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "eq", expect, message)
}

// AssertNotEqual asserts the checked value differs from expect.
func (b *ValidationBuilder) AssertNotEqual(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "ne", expect, message)
}

// AssertGreaterThan asserts the checked value is numerically greater.
func (b *ValidationBuilder) AssertGreaterThan(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "gt", expect, message)
}

// AssertLessThan asserts the checked value is numerically smaller.
func (b *ValidationBuilder) AssertLessThan(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "lt", expect, message)
}

// AssertContains asserts the checked value contains expect.
func (b *ValidationBuilder) AssertContains(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "contains", expect, message)
}

// AssertStartsWith asserts the checked value starts with expect.
func (b *ValidationBuilder) AssertStartsWith(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "startswith", expect, message)
}

// AssertEndsWith asserts the checked value ends with expect.
func (b *ValidationBuilder) AssertEndsWith(check string, expect any, message ...string) *ValidationBuilder {
	return b.assert(check, "endswith", expect, message)
}

// AssertLengthEqual asserts the checked value's length equals expect.
func (b *ValidationBuilder) AssertLengthEqual(check string, expect int, message ...string) *ValidationBuilder {
	return b.assert(check, "len_eq", expect, message)
}

// AssertRegexMatch asserts the checked value matches the pattern.
func (b *ValidationBuilder) AssertRegexMatch(check, pattern string, message ...string) *ValidationBuilder {
	return b.assert(check, "regex_match", pattern, message)
}

// AssertTypeMatch asserts the checked value has the named type.
func (b *ValidationBuilder) AssertTypeMatch(check, typeName string, message ...string) *ValidationBuilder {
	return b.assert(check, "type_match", typeName, message)
}

// AssertExpression appends a predicate expression evaluated against the
// merged bindings and the response document.
func (b *ValidationBuilder) AssertExpression(expression string, message ...string) *ValidationBuilder {
	assertion := Assertion{Expression: expression}
	if len(message) > 0 {
		assertion.Message = message[0]
	}
	b.step.Validators = append(b.step.Validators, assertion)
	return b
}

// Build returns the accumulated descriptor.
func (b *ValidationBuilder) Build() *Descriptor {
	return b.step
}

// Run executes the step against a session.
func (b *ValidationBuilder) Run(s *Session) (*Result, error) {
	return s.RunStep(b.step)
}
