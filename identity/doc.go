// Package identity defines the storefront user record, the closed role set, and the
// contact-field syntax rules (phone, email) shared by the session store, the
// authentication flow, and the OTP issuer.
//
// # What this package must NOT do
//
//   - Import any other package of this module.
//   - Perform I/O.
package identity
