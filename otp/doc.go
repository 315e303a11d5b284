// Package otp is the reference challenge issuer behind the storefront's login and
// signup forms.
//
// A challenge is a random six-digit code delivered by SMS. Only a hash bound to
// the challenge id is kept in Redis, for five minutes by default. Five wrong codes
// burn the challenge, and issue requests are throttled per phone in fixed windows.
// A correct code yields a signed credential token for the account registered to
// the phone, or for a newly created account on signup.
//
// Rejections carry their user-facing message as *backend.Error; anything else is
// an infrastructure failure.
package otp
