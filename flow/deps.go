package flow

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/redirect"
	"github.com/aircare/otpauth/session"
)

// DefaultResendCooldown is the wait between a successful issue and the next resend.
const DefaultResendCooldown = 60 * time.Second

var (
	// ErrMissingBackend is returned by [New] without a backend.
	ErrMissingBackend = errors.New("flow: backend is required")
	// ErrMissingSession is returned by [New] without a session store.
	ErrMissingSession = errors.New("flow: session store is required")
	// ErrMissingRedirect is returned by [New] without redirect memory.
	ErrMissingRedirect = errors.New("flow: redirect memory is required")
	// ErrInvalidVariant is returned by [New] for an unknown variant.
	ErrInvalidVariant = errors.New("flow: invalid variant")
	// ErrClosed is returned by [Flow.WaitResend] once the flow is closed.
	ErrClosed = errors.New("flow: closed")
)

// Observer receives one event per completed backend round trip.
type Observer interface {
	ObserveFlow(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) ObserveFlow(ctx context.Context, e Event) { f(ctx, e) }

// Deps wires a [Flow] to the client it authenticates.
type Deps struct {
	Backend  backend.Backend
	Session  *session.Store
	Redirect *redirect.Memory

	// ResendCooldown defaults to DefaultResendCooldown.
	ResendCooldown time.Duration
	// Now defaults to time.Now. Deadlines keep its monotonic reading.
	Now func() time.Time

	Observer Observer
	Logger   *zap.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Backend == nil:
		return ErrMissingBackend
	case d.Session == nil:
		return ErrMissingSession
	case d.Redirect == nil:
		return ErrMissingRedirect
	}
	return nil
}

func (d Deps) withDefaults() Deps {
	if d.ResendCooldown <= 0 {
		d.ResendCooldown = DefaultResendCooldown
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}
