// Package stores provides the Redis-backed, short-lived challenge records behind
// phone OTP issuance.
//
// # Design
//
// Each record is versioned and binary-encoded, stored with a TTL. Consume uses
// WATCH/MULTI optimistic transactions with retry on contention. Records are
// single-use and bound to a purpose and phone. Code hashes are compared in
// constant time.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for challenge records. It
// does not generate codes or decide user-facing messages; the otp package does.
//
// # What this package must NOT do
//
//   - Import otpauth or any sibling internal package.
//   - Log or expose plaintext codes.
package stores
