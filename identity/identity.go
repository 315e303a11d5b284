package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRole is returned when a role string is not one of the known roles.
var ErrInvalidRole = errors.New("invalid role")

// ErrInvalidIdentity is returned when an identity record is missing required fields.
var ErrInvalidIdentity = errors.New("invalid identity")

// Role is the closed set of storefront roles. The zero value is not a valid role.
type Role uint8

const (
	// RoleUser is a regular storefront customer.
	RoleUser Role = iota + 1
	// RoleAdmin is a back-office operator.
	RoleAdmin
)

// ParseRole maps the wire spelling of a role to a [Role].
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role using its wire spelling.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes the wire spelling produced by [Role.MarshalText].
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Identity is the authenticated user record held by a session.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Validate checks the fields every persisted identity must carry.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidIdentity)
	}
	if !i.Role.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, ErrInvalidRole)
	}
	return nil
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// IsUser reports whether the identity carries the user role.
func (i Identity) IsUser() bool {
	return i.Role == RoleUser
}
