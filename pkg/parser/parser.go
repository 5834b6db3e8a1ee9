package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Resolution errors.
var (
	// ErrVariableNotFound indicates a $name reference with no binding.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrSelfReference indicates a variable whose template references itself.
	ErrSelfReference = errors.New("variable references itself")
)

// tokenRegex matches the three expression forms: the $$ escape, ${...}
// expressions, and bare $name references.
var tokenRegex = regexp.MustCompile(`\$\$|\$\{([^}]+)\}|\$([A-Za-z_]\w*)`)

// refRegex rewrites $name references inside ${...} to plain identifiers.
var refRegex = regexp.MustCompile(`\$([A-Za-z_]\w*)`)

// Parser substitutes $name and ${expression} templates using a variable
// bindings map and a registered functions mapping. ${...} expressions are
// compiled once and cached.
type Parser struct {
	functions map[string]any

	programMu sync.RWMutex
	programs  map[string]*vm.Program
}

// New creates a parser with the given callable functions mapping. Values
// must be Go functions; an (any, error) return propagates the error.
func New(functions map[string]any) *Parser {
	return &Parser{
		functions: functions,
		programs:  make(map[string]*vm.Program),
	}
}

// Parse resolves every embedded expression in value, recursing over maps
// and slices. Scalars without expressions pass through unchanged, so Parse
// is idempotent on already-resolved data.
func (p *Parser) Parse(value any, vars map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return p.ParseString(v, vars)
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, item := range v {
			parsedKey, err := p.ParseString(key, vars)
			if err != nil {
				return nil, err
			}
			parsedItem, err := p.Parse(item, vars)
			if err != nil {
				return nil, err
			}
			resolved[fmt.Sprintf("%v", parsedKey)] = parsedItem
		}
		return resolved, nil
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			parsed, err := p.Parse(item, vars)
			if err != nil {
				return nil, err
			}
			resolved[i] = parsed
		}
		return resolved, nil
	default:
		return value, nil
	}
}

// ParseString resolves the expressions in a single string. A string that is
// exactly one expression resolves to the binding's native type; embedded
// expressions are stringified in place.
func (p *Parser) ParseString(s string, vars map[string]any) (any, error) {
	matches := tokenRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string single expression keeps the native value type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) && s != "$$" {
		return p.evaluateToken(s, matches[0], vars)
	}

	var evalErr error
	result := tokenRegex.ReplaceAllStringFunc(s, func(token string) string {
		if evalErr != nil {
			return token
		}
		match := tokenRegex.FindStringSubmatchIndex(token)
		value, err := p.evaluateToken(token, match, vars)
		if err != nil {
			evalErr = err
			return token
		}
		return fmt.Sprintf("%v", value)
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return result, nil
}

// evaluateToken resolves one matched token. The match indices are relative
// to the token string.
func (p *Parser) evaluateToken(token string, match []int, vars map[string]any) (any, error) {
	if token == "$$" {
		return "$", nil
	}
	// ${expression}
	if match[2] >= 0 {
		return p.evaluateExpr(token[match[2]:match[3]], vars)
	}
	// $name
	name := token[match[4]:match[5]]
	value, ok := vars[name]
	if !ok {
		return nil, fmt.Errorf("%w: $%s", ErrVariableNotFound, name)
	}
	return value, nil
}

// evaluateExpr evaluates a ${...} expression body against the bindings and
// the functions mapping. $name references inside the body are rewritten to
// plain identifiers first, so ${sum($a, 2)} and ${sum(a, 2)} are equivalent.
func (p *Parser) evaluateExpr(src string, vars map[string]any) (any, error) {
	src = refRegex.ReplaceAllString(src, "$1")

	program, err := p.compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", src, err)
	}

	env := make(map[string]any, len(p.functions)+len(vars))
	for name, fn := range p.functions {
		env[name] = fn
	}
	for name, value := range vars {
		env[name] = value
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", src, err)
	}
	return result, nil
}

// Evaluate evaluates a single expression body against the bindings and the
// functions mapping, without the ${...} wrapper. $name references are
// accepted and rewritten to plain identifiers.
func (p *Parser) Evaluate(src string, vars map[string]any) (any, error) {
	return p.evaluateExpr(src, vars)
}

// compile returns a cached program for the expression source, compiling on
// first use.
func (p *Parser) compile(src string) (*vm.Program, error) {
	p.programMu.RLock()
	program, ok := p.programs[src]
	p.programMu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	p.programMu.Lock()
	p.programs[src] = program
	p.programMu.Unlock()
	return program, nil
}

// ParseVariables resolves a variables mapping whose values may reference
// other variables in the same mapping. Resolution order is discovered by
// repeated passes; a variable that references itself is rejected.
func (p *Parser) ParseVariables(vars map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(vars))
	pending := make(map[string]any, len(vars))
	for name, value := range vars {
		for _, ref := range referencedNames(value) {
			if ref == name {
				return nil, fmt.Errorf("%w: %s", ErrSelfReference, name)
			}
		}
		pending[name] = value
	}

	// Each pass resolves every variable whose references are already
	// available. Lack of progress means an unresolvable reference.
	for len(pending) > 0 {
		progressed := false
		var lastErr error
		for name, value := range pending {
			if referencesPending(value, pending) {
				continue
			}
			parsed, err := p.Parse(value, resolved)
			if err != nil {
				lastErr = err
				continue
			}
			resolved[name] = parsed
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			if lastErr == nil {
				lastErr = fmt.Errorf("%w: circular variable references", ErrSelfReference)
			}
			return nil, lastErr
		}
	}
	return resolved, nil
}

// referencesPending reports whether value references any variable that has
// not been resolved yet.
func referencesPending(value any, pending map[string]any) bool {
	for _, ref := range referencedNames(value) {
		if _, ok := pending[ref]; ok {
			return true
		}
	}
	return false
}

// referencedNames collects the variable names a templated value refers to,
// in both the $name and ${...} forms.
func referencedNames(value any) []string {
	var names []string
	switch v := value.(type) {
	case string:
		for _, match := range tokenRegex.FindAllStringSubmatch(v, -1) {
			if match[0] == "$$" {
				continue
			}
			if match[2] != "" {
				names = append(names, match[2])
				continue
			}
			for _, ref := range refRegex.FindAllStringSubmatch(match[1], -1) {
				names = append(names, ref[1])
			}
		}
	case map[string]any:
		for key, item := range v {
			names = append(names, referencedNames(key)...)
			names = append(names, referencedNames(item)...)
		}
	case []any:
		for _, item := range v {
			names = append(names, referencedNames(item)...)
		}
	}
	return names
}

// BuildURL joins a base URL and a step URL. Absolute ws:// and wss:// step
// URLs win; otherwise the path is appended to the base.
func BuildURL(base, path string) string {
	if strings.HasPrefix(path, "ws://") || strings.HasPrefix(path, "wss://") {
		return path
	}
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
