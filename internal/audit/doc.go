// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record keyed by client and user.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. The engine decides which events
// to emit.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import otpauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
