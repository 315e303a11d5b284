package session

import "github.com/aircare/otpauth/identity"

// Status is the resolution state of a client session.
type Status uint8

const (
	// StatusLoading means persisted storage has not been read yet.
	StatusLoading Status = iota
	// StatusAbsent means no one is logged in.
	StatusAbsent
	// StatusPresent means both identity and credential token are held.
	StatusPresent
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAbsent:
		return "absent"
	case StatusPresent:
		return "present"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of a session at one instant.
type Snapshot struct {
	Status   Status
	Identity identity.Identity
	Token    string
}

// IsAuthenticated reports whether the snapshot holds a session.
func (s Snapshot) IsAuthenticated() bool {
	return s.Status == StatusPresent
}

// IsAdmin reports whether the snapshot holds an admin session.
func (s Snapshot) IsAdmin() bool {
	return s.IsAuthenticated() && s.Identity.IsAdmin()
}

// IsUser reports whether the snapshot holds a regular user session.
func (s Snapshot) IsUser() bool {
	return s.IsAuthenticated() && s.Identity.IsUser()
}
