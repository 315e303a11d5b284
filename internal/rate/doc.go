// Package rate provides the Redis-backed fixed-window counters behind OTP request
// and verification throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - otpi: challenge issue per phone
//
// # What this package must NOT do
//
//   - Decide user-facing messages (those live in otp).
//   - Be imported outside this module.
package rate
