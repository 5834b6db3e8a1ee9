package step

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Assertion is one validator entry. Either Expression is set, an
// expression evaluated against the merged bindings that must yield true,
// or Check/Comparator/Expect describe a comparison, where Check is a
// response path (e.g. "body.code", "status_code") or a $variable reference.
type Assertion struct {
	Check      string `json:"check,omitempty" yaml:"check,omitempty"`
	Comparator string `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Expect     any    `json:"expect,omitempty" yaml:"expect,omitempty"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`

	// Expression is an expr-lang predicate, e.g. "body.count > 0 && status_code == 101".
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// AssertionResult records one assertion's evaluation for reporting.
type AssertionResult struct {
	Check      string `json:"check"`
	Comparator string `json:"comparator"`
	Expect     any    `json:"expect,omitempty"`
	Actual     any    `json:"actual,omitempty"`
	Pass       bool   `json:"pass"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// describe renders one line of the multi-assertion failure report.
func (r AssertionResult) describe() string {
	var b strings.Builder
	if r.Comparator == "expression" {
		fmt.Fprintf(&b, "expression %s => %v", r.Check, r.Actual)
	} else {
		fmt.Fprintf(&b, "%s %s %v, actual: %v", r.Check, r.Comparator, r.Expect, r.Actual)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, " (error: %s)", r.Error)
	}
	if r.Message != "" {
		fmt.Fprintf(&b, " [%s]", r.Message)
	}
	return b.String()
}

// ValidationFailure carries every failing assertion of a step. It is always
// recovered by the orchestrator into a failed Result, never propagated.
type ValidationFailure struct {
	Results []AssertionResult
}

// Error implements error with the formatted multi-assertion report.
func (e *ValidationFailure) Error() string {
	return e.Report()
}

// Report formats the failing assertions, one per line.
func (e *ValidationFailure) Report() string {
	var lines []string
	for _, r := range e.Results {
		if !r.Pass {
			lines = append(lines, "assert "+r.describe())
		}
	}
	return strings.Join(lines, "\n")
}

// comparator evaluates expect against actual.
type comparator func(actual, expect any) (bool, error)

// comparators is the closed set of supported comparison operators.
var comparators = map[string]comparator{
	"eq":           compareEqual,
	"equal":        compareEqual,
	"ne":           func(a, e any) (bool, error) { ok, err := compareEqual(a, e); return !ok, err },
	"gt":           orderingComparator(func(c int) bool { return c > 0 }),
	"ge":           orderingComparator(func(c int) bool { return c >= 0 }),
	"lt":           orderingComparator(func(c int) bool { return c < 0 }),
	"le":           orderingComparator(func(c int) bool { return c <= 0 }),
	"contains":     compareContains,
	"contained_by": func(a, e any) (bool, error) { return compareContains(e, a) },
	"startswith": func(a, e any) (bool, error) {
		return strings.HasPrefix(stringify(a), stringify(e)), nil
	},
	"endswith": func(a, e any) (bool, error) {
		return strings.HasSuffix(stringify(a), stringify(e)), nil
	},
	"len_eq":      compareLengthEqual,
	"regex_match": compareRegexMatch,
	"type_match":  compareTypeMatch,
}

// compareEqual compares two values with numeric coercion: JSON numbers
// arrive as float64, YAML expectations as int.
func compareEqual(actual, expect any) (bool, error) {
	if actual == nil && expect == nil {
		return true, nil
	}
	if reflect.DeepEqual(actual, expect) {
		return true, nil
	}
	actualNum, actualIsNum := toFloat64(actual)
	expectNum, expectIsNum := toFloat64(expect)
	if actualIsNum && expectIsNum {
		return actualNum == expectNum, nil
	}
	return false, nil
}

// orderingComparator builds a numeric ordering check from a sign predicate.
func orderingComparator(accept func(int) bool) comparator {
	return func(actual, expect any) (bool, error) {
		actualNum, ok := toFloat64(actual)
		if !ok {
			return false, fmt.Errorf("value %v (%T) is not numeric", actual, actual)
		}
		expectNum, ok := toFloat64(expect)
		if !ok {
			return false, fmt.Errorf("expectation %v (%T) is not numeric", expect, expect)
		}
		switch {
		case actualNum > expectNum:
			return accept(1), nil
		case actualNum < expectNum:
			return accept(-1), nil
		default:
			return accept(0), nil
		}
	}
}

// compareContains checks substring membership for strings, element
// membership for slices, and key membership for maps.
func compareContains(actual, expect any) (bool, error) {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, stringify(expect)), nil
	case []any:
		for _, item := range v {
			if ok, _ := compareEqual(item, expect); ok {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := v[stringify(expect)]
		return ok, nil
	default:
		return false, fmt.Errorf("value of type %T does not support contains", actual)
	}
}

func compareLengthEqual(actual, expect any) (bool, error) {
	expectNum, ok := toFloat64(expect)
	if !ok {
		return false, fmt.Errorf("expectation %v (%T) is not numeric", expect, expect)
	}
	var length int
	switch v := actual.(type) {
	case string:
		length = len(v)
	case []any:
		length = len(v)
	case map[string]any:
		length = len(v)
	case nil:
		length = 0
	default:
		return false, fmt.Errorf("value of type %T has no length", actual)
	}
	return float64(length) == expectNum, nil
}

func compareRegexMatch(actual, expect any) (bool, error) {
	pattern, ok := expect.(string)
	if !ok {
		return false, fmt.Errorf("regex_match expectation must be a string, got %T", expect)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(stringify(actual)), nil
}

// compareTypeMatch checks the value's kind against a type name: "string",
// "int", "float", "bool", "list", "map", "nil".
func compareTypeMatch(actual, expect any) (bool, error) {
	name, ok := expect.(string)
	if !ok {
		return false, fmt.Errorf("type_match expectation must be a string, got %T", expect)
	}
	switch strings.ToLower(name) {
	case "string", "str":
		_, ok := actual.(string)
		return ok, nil
	case "int", "integer":
		if _, ok := actual.(int); ok {
			return true, nil
		}
		if f, ok := actual.(float64); ok {
			return f == float64(int64(f)), nil
		}
		return false, nil
	case "float", "number":
		_, ok := toFloat64(actual)
		return ok, nil
	case "bool", "boolean":
		_, ok := actual.(bool)
		return ok, nil
	case "list", "array", "slice":
		_, ok := actual.([]any)
		return ok, nil
	case "map", "object":
		_, ok := actual.(map[string]any)
		return ok, nil
	case "nil", "null", "none":
		return actual == nil, nil
	default:
		return false, fmt.Errorf("unknown type name %q", name)
	}
}

// toFloat64 attempts numeric coercion across the types JSON and YAML
// decoding produce.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
