// Package otpauth wires phone/OTP authentication for the AirCare storefront: a
// per-client session store, login and signup flows, a route guard and the
// post-login redirect memory.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// otpauth is the public surface. It exposes [Engine], [Builder], [Config], [Client] and
// value types (MetricsSnapshot, AuditEvent). The state machines live in flow, session,
// redirect and guard; none of them imports this package.
//
// # What this package must NOT do
//
//   - Expose Redis clients or persistence key layout in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Log or audit OTP codes and credential tokens.
package otpauth
