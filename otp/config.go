package otp

import (
	"errors"
	"fmt"
	"time"
)

// Config tunes challenge issuance and verification.
type Config struct {
	CodeDigits   int
	ChallengeTTL time.Duration
	MaxAttempts  int

	// Issue requests per phone per window. Zero disables the throttle.
	MaxRequests   int
	RequestWindow time.Duration

	KeyPrefix string
}

// ErrInvalidConfig wraps every configuration problem reported by [Config.Validate].
var ErrInvalidConfig = errors.New("otp: invalid configuration")

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CodeDigits:    6,
		ChallengeTTL:  5 * time.Minute,
		MaxAttempts:   5,
		MaxRequests:   5,
		RequestWindow: 15 * time.Minute,
		KeyPrefix:     "otp",
	}
}

// Validate checks cfg for internally consistent values.
func (c Config) Validate() error {
	if c.CodeDigits != 6 {
		return fmt.Errorf("%w: code digits must be 6", ErrInvalidConfig)
	}
	if c.ChallengeTTL <= 0 || c.ChallengeTTL > time.Hour {
		return fmt.Errorf("%w: challenge ttl must be within (0, 1h]", ErrInvalidConfig)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be > 0", ErrInvalidConfig)
	}
	if c.MaxRequests < 0 || (c.MaxRequests > 0 && c.RequestWindow <= 0) {
		return fmt.Errorf("%w: request throttle requires a positive window", ErrInvalidConfig)
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("%w: key prefix must not be empty", ErrInvalidConfig)
	}
	return nil
}
