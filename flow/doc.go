// Package flow drives the two-step phone/OTP exchange that produces a session.
//
// A [Flow] is one mounted login or signup form:
//
//	SubjectStep --RequestCode--> ChallengeStep --Verify--> Resolved
//	     ^                           |   ^
//	     +-----------Back------------+   +--Resend (countdown == 0)
//
// On a successful Verify the flow commits the session, then consumes the
// remembered destination and reports where to navigate.
//
// # Architecture boundaries
//
// Flow owns the challenge state only. It writes the session exclusively through
// session.Store.Commit and reads redirect memory exclusively through
// redirect.Memory.ConsumeIfPresent.
//
// # What this package must NOT do
//
//   - return backend or storage errors to callers
//   - call the backend for input that failed local validation
//   - log phone numbers in clear, codes, or tokens
package flow
