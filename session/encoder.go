package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aircare/otpauth/identity"
)

// ErrCorrupt is returned by the decoders when a persisted value cannot be trusted.
var ErrCorrupt = errors.New("persisted session corrupt")

// EncodeIdentity serializes id for the persistence medium.
func EncodeIdentity(id identity.Identity) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeIdentity parses a value produced by [EncodeIdentity].
func DecodeIdentity(raw string) (identity.Identity, error) {
	var id identity.Identity
	if strings.TrimSpace(raw) == "" {
		return id, fmt.Errorf("%w: empty identity", ErrCorrupt)
	}
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := id.Validate(); err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return id, nil
}

// ValidToken reports whether token is syntactically usable as a bearer credential.
func ValidToken(token string) bool {
	if token == "" {
		return false
	}
	return !strings.ContainsAny(token, " \t\r\n")
}
