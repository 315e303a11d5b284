// Package httpapi is the server side of the authentication API.
//
// Rejections answer 400 with success=false and the message. Anything else that
// goes wrong answers 500 with a generic message; the cause is only logged.
//
// # What this package must NOT do
//
//   - echo infrastructure errors to the caller
//   - log codes or tokens
package httpapi
