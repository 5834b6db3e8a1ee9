// Package parser resolves templated step data before it reaches the wire.
//
// Two expression forms are supported inside strings: $name references a
// variable binding, and ${expression} evaluates an expression against the
// bindings and the registered functions mapping, so ${sum($a, 2)} calls the
// registered "sum" function. Resolution recurses over maps and slices and
// is idempotent on values that contain no expressions.
package parser
