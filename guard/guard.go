// Package guard decides, per navigation, whether a protected destination may render.
//
// [Decide] is a pure function of the destination's [Capability] and a session
// snapshot. [Evaluate] applies its single side effect: remembering the requested
// path when an unauthenticated client is sent to log in.
package guard

import (
	"context"

	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/redirect"
	"github.com/aircare/otpauth/session"
)

// Capability is the access requirement of a routed destination.
type Capability uint8

const (
	// None renders for everyone.
	None Capability = iota
	// AnyAuthenticated requires a session of any role.
	AnyAuthenticated
	// AdminOnly requires an admin session.
	AdminOnly
	// UserOnly requires a regular user session.
	UserOnly
)

func (c Capability) String() string {
	switch c {
	case None:
		return "none"
	case AnyAuthenticated:
		return "any_authenticated"
	case AdminOnly:
		return "admin_only"
	case UserOnly:
		return "user_only"
	default:
		return "unknown"
	}
}

// Action is what the router should do with the navigation.
type Action uint8

const (
	// Render shows the requested destination.
	Render Action = iota
	// Pending shows a neutral placeholder while the session is still loading.
	Pending
	// Redirect navigates to Decision.Location instead.
	Redirect
)

// Reason explains a decision for logs, metrics and audit.
type Reason uint8

const (
	ReasonAllowed Reason = iota
	ReasonLoading
	ReasonUnauthenticated
	ReasonForbidden
)

func (r Reason) String() string {
	switch r {
	case ReasonAllowed:
		return "allowed"
	case ReasonLoading:
		return "loading"
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Decision is the outcome of [Decide].
type Decision struct {
	Action   Action
	Reason   Reason
	Location string
	// Remember is the path to store in redirect memory, empty when nothing should be stored.
	Remember string
}

// Decide evaluates capability against snap for a navigation to requested
// (path plus query).
func Decide(capability Capability, snap session.Snapshot, requested string, routes redirect.Routes) Decision {
	if snap.Status == session.StatusLoading {
		return Decision{Action: Pending, Reason: ReasonLoading}
	}
	if capability == None {
		return Decision{Action: Render, Reason: ReasonAllowed}
	}

	if !snap.IsAuthenticated() {
		d := Decision{Action: Redirect, Reason: ReasonUnauthenticated, Location: loginFor(capability, routes)}
		if !routes.IsLoginPath(requested) {
			d.Remember = requested
		}
		return d
	}

	if allowed(capability, snap.Identity.Role) {
		return Decision{Action: Render, Reason: ReasonAllowed}
	}
	return Decision{Action: Redirect, Reason: ReasonForbidden, Location: routes.AppHome}
}

func loginFor(capability Capability, routes redirect.Routes) string {
	switch capability {
	case AdminOnly:
		return routes.AdminLoginPath
	case AnyAuthenticated, UserOnly:
		return routes.LoginPath
	default:
		return routes.LoginPath
	}
}

func allowed(capability Capability, role identity.Role) bool {
	switch capability {
	case None, AnyAuthenticated:
		return role.Valid()
	case AdminOnly:
		switch role {
		case identity.RoleAdmin:
			return true
		case identity.RoleUser:
			return false
		}
	case UserOnly:
		switch role {
		case identity.RoleUser:
			return true
		case identity.RoleAdmin:
			return false
		}
	}
	return false
}

// Evaluate runs [Decide] for the client's current session and remembers the
// requested path on the unauthenticated branch.
//
// A failed remember does not change the decision; the error is returned alongside it.
func Evaluate(
	ctx context.Context,
	capability Capability,
	store *session.Store,
	memory *redirect.Memory,
	requested string,
) (Decision, error) {
	d := Decide(capability, store.Snapshot(), requested, memory.Routes())
	if d.Reason != ReasonUnauthenticated || d.Remember == "" {
		return d, nil
	}
	if _, err := memory.Remember(ctx, d.Remember); err != nil {
		return d, err
	}
	return d, nil
}
