// Package ws implements the WebSocket protocol client used by test steps.
//
// A Client owns exactly one connection and exposes the discrete operations a
// step can perform: open, ping, write, read, write-and-read, and close. All
// I/O is synchronous and blocking; a Client is not safe for concurrent use.
// Parallel sessions require separate Client instances.
package ws
