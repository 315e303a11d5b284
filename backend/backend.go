// Package backend declares the challenge/response service the authentication flow talks to.
//
// Implementations: backend/rest (JSON over HTTP) and otp.Service (in-process issuer).
package backend

import (
	"context"
	"errors"

	"github.com/aircare/otpauth/identity"
)

// GenericMessage is shown for failures that carry no human-readable message.
const GenericMessage = "Something went wrong. Please try again."

// Challenge is the result of a successful issue call.
type Challenge struct {
	ID      string
	Message string
}

// Details is the extra subject data collected by signup.
type Details struct {
	Name  string
	Email string
}

// Grant is the result of a successful verify call.
type Grant struct {
	Identity identity.Identity
	Token    string
	Message  string
}

// Backend issues and verifies one-time-code challenges.
type Backend interface {
	IssueLoginChallenge(ctx context.Context, phone string) (Challenge, error)
	IssueSignupChallenge(ctx context.Context, phone, name, email string) (Challenge, error)
	VerifyLoginChallenge(ctx context.Context, phone, code, challengeID string) (Grant, error)
	VerifySignupChallenge(ctx context.Context, phone, code, challengeID string, details Details) (Grant, error)
}

// Error is a rejection with a message meant for the person at the keyboard.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return GenericMessage
	}
	return e.Message
}

// Reject builds an [*Error].
func Reject(message string) error {
	return &Error{Message: message}
}

// IsRejection reports whether err is (or wraps) an [*Error].
func IsRejection(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// MessageOf returns the rejection message carried by err, or [GenericMessage].
func MessageOf(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return GenericMessage
}
