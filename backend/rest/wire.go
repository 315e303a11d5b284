package rest

import "github.com/aircare/otpauth/identity"

// Endpoint paths of the authentication API.
const (
	PathLoginSendOTP    = "/api/auth/login/send-otp"
	PathSignupSendOTP   = "/api/auth/signup/send-otp"
	PathLoginVerifyOTP  = "/api/auth/login/verify-otp"
	PathSignupVerifyOTP = "/api/auth/signup/verify-otp"
)

// SendOTPRequest is the body of both send-otp endpoints. Name and Email are signup only.
type SendOTPRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// VerifyOTPRequest is the body of both verify-otp endpoints. Name and Email are signup only.
type VerifyOTPRequest struct {
	Phone       string `json:"phone"`
	OTP         string `json:"otp"`
	ChallengeID string `json:"challengeId"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ChallengeResponse answers send-otp.
type ChallengeResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	ChallengeID string `json:"challengeId,omitempty"`
}

// GrantResponse answers verify-otp.
type GrantResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	User    *identity.Identity `json:"user,omitempty"`
	Token   string             `json:"token,omitempty"`
}
