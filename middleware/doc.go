// Package middleware adapts the engine's client state and route guard to net/http.
//
// # Handlers
//
//   - [Client]: resolves the browser's client cookie, minting one when missing.
//   - [Guard]: applies a guard.Capability to the wrapped handler.
//   - [RequireAuthenticated], [RequireUser], [RequireAdmin]: fixed-capability guards.
//
// A loading session answers 503 with Retry-After so nothing renders before the session
// is known. Redirects use 303 See Other.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. All decisions are delegated
// to Engine.Authorize.
//
// # What this package must NOT do
//
//   - Read or write the persistence medium directly.
//   - Decide access beyond what guard.Decide returns.
package middleware
