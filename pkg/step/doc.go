// Package step orchestrates WebSocket test steps.
//
// A Descriptor records one step's intended operation, payload, headers,
// timeout, hooks and extraction/validation rules. A Session carries the
// variable bindings, the callable functions mapping and the cached protocol
// client for one run. Session.RunStep resolves the descriptor's templated
// fields, drives the protocol client, runs hooks, performs extraction and
// validation, and always returns a Result: business-level failures (network
// errors, failed assertions) are recorded on the result, never returned as
// errors. Only contract violations, such as a malformed descriptor or an
// unknown operation, produce an error return.
package step
