// Package internal holds helpers private to the otpauth module: code generation and
// code hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - rate: Redis-backed fixed-window throttling
//   - stores: short-lived challenge records in Redis
//   - storefront: the storefront BFF HTTP surface
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpauth API.
package internal
