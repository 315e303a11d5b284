package otpauth

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/flow"
	"github.com/aircare/otpauth/guard"
	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/internal/audit"
	"github.com/aircare/otpauth/kv"
	"github.com/aircare/otpauth/redirect"
	"github.com/aircare/otpauth/session"
)

// Engine hands out per-client session state and the flows and guard decisions
// that operate on it. Safe for concurrent use.
type Engine struct {
	config     Config
	space      kv.Space
	backend    backend.Backend
	logger     *zap.Logger
	tokenCheck func(string) error
	now        func() time.Time
	audit      *audit.Dispatcher
	metrics    *Metrics
	closed     atomic.Bool
}

// Client is the state of one browser: its session and its post-login destination.
// Both share the client's persistence medium.
type Client struct {
	ID       string
	Session  *session.Store
	Redirect *redirect.Memory
}

// NewClientID returns a fresh random client ID.
func NewClientID() string {
	return uuid.NewString()
}

// Client returns the state of clientID. The session starts loading; it is
// resolved by the first Authorize or by Session.Initialize.
func (e *Engine) Client(clientID string) (*Client, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	parsed, err := uuid.Parse(clientID)
	if err != nil {
		return nil, ErrClientIDInvalid
	}
	id := parsed.String()
	medium := e.space.For(id)

	store := session.NewStore(medium,
		session.WithKeys(e.config.Session.IdentityKey, e.config.Session.TokenKey),
		session.WithTokenCheck(e.tokenCheck),
		session.WithCorruptionHook(func(ctx context.Context, reason string) {
			e.onSessionCorrupt(ctx, id, reason)
		}),
		session.WithCommitHook(func(ctx context.Context, who identity.Identity) {
			e.metrics.Inc(MetricSessionCommitted)
			e.emitAudit(ctx, AuditEvent{
				EventType: AuditSessionCommit,
				ClientID:  id,
				UserID:    who.ID,
				Role:      who.Role.String(),
				Success:   true,
			})
		}),
		session.WithClearHook(func(ctx context.Context) {
			e.metrics.Inc(MetricSessionCleared)
			e.emitAudit(ctx, AuditEvent{EventType: AuditSessionClear, ClientID: id, Success: true})
		}),
	)
	memory := redirect.NewMemory(medium, e.config.Routes).WithKey(e.config.Session.RedirectKey)

	return &Client{ID: id, Session: store, Redirect: memory}, nil
}

// NewFlow mounts a login or signup flow for c.
func (e *Engine) NewFlow(c *Client, variant flow.Variant) (*flow.Flow, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if c == nil {
		return nil, ErrClientIDInvalid
	}
	clientID := c.ID
	return flow.New(variant, flow.Deps{
		Backend:        e.backend,
		Session:        c.Session,
		Redirect:       c.Redirect,
		ResendCooldown: e.config.Flow.ResendCooldown,
		Now:            e.now,
		Observer: flow.ObserverFunc(func(ctx context.Context, ev flow.Event) {
			e.observeFlow(ctx, clientID, ev)
		}),
		Logger: e.logger.With(zap.String("client_id", clientID), zap.Stringer("variant", variant)),
	})
}

// Authorize resolves c's session and decides whether requested may render under
// capability. An unauthenticated request remembers requested for after login.
//
// The returned error reports a failure to remember the destination; the decision
// is still usable.
func (e *Engine) Authorize(
	ctx context.Context,
	c *Client,
	capability guard.Capability,
	requested string,
) (guard.Decision, error) {
	if !e.ready() {
		return guard.Decision{}, ErrEngineNotReady
	}
	c.Session.Initialize(ctx)

	d, err := guard.Evaluate(ctx, capability, c.Session, c.Redirect, requested)
	switch d.Reason {
	case guard.ReasonAllowed:
		e.metrics.Inc(MetricGuardAllowed)
	case guard.ReasonLoading:
		e.metrics.Inc(MetricGuardPending)
	case guard.ReasonUnauthenticated:
		e.metrics.Inc(MetricGuardLoginRedirect)
		if d.Remember != "" && err == nil {
			e.metrics.Inc(MetricRedirectRemembered)
		}
	case guard.ReasonForbidden:
		e.metrics.Inc(MetricGuardForbidden)
		snap := c.Session.Snapshot()
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditGuardDenied,
			ClientID:  c.ID,
			UserID:    snap.Identity.ID,
			Role:      snap.Identity.Role.String(),
			Path:      requested,
			Success:   false,
		})
	}
	if err != nil {
		e.logger.Warn("remember destination failed", zap.String("client_id", c.ID), zap.Error(err))
	}
	return d, err
}

// Logout clears c's session. The in-memory session is absent even when the
// storage delete fails.
func (e *Engine) Logout(ctx context.Context, c *Client) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	e.metrics.Inc(MetricLogout)
	if err := c.Session.Clear(ctx); err != nil {
		e.logger.Warn("logout storage failure", zap.String("client_id", c.ID), zap.Error(err))
		return err
	}
	return nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Routes returns the configured route table.
func (e *Engine) Routes() redirect.Routes {
	return e.config.Routes
}

// Backend returns the challenge backend shared by every flow.
func (e *Engine) Backend() backend.Backend {
	return e.backend
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return NewMetrics(MetricsConfig{}).Snapshot()
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType returns the dropped audit events keyed by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// Close flushes pending audit events. Later calls fail with [ErrEngineNotReady].
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.audit.Close()
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load()
}

func (e *Engine) observeFlow(ctx context.Context, clientID string, ev flow.Event) {
	e.metrics.Observe(MetricBackendLatency, ev.Elapsed)

	meta := map[string]string{"variant": ev.Variant.String(), "op": ev.Op.String()}
	if !ev.OK {
		meta["kind"] = ev.Kind.String()
	}

	switch ev.Op {
	case flow.OpIssue, flow.OpResend:
		switch {
		case !ev.OK:
			e.metrics.Inc(MetricChallengeIssueFailed)
		case ev.Op == flow.OpResend:
			e.metrics.Inc(MetricChallengeResent)
		default:
			e.metrics.Inc(MetricChallengeIssued)
		}
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditChallengeIssue,
			ClientID:  clientID,
			Success:   ev.OK,
			Metadata:  meta,
		})
	case flow.OpVerify:
		if ev.OK {
			e.metrics.Inc(MetricVerifySuccess)
			if ev.Variant == flow.Signup {
				e.metrics.Inc(MetricSignupSuccess)
			} else {
				e.metrics.Inc(MetricLoginSuccess)
			}
		} else {
			e.metrics.Inc(MetricVerifyFailure)
		}
		e.emitAudit(ctx, AuditEvent{
			EventType: AuditChallengeVerify,
			ClientID:  clientID,
			UserID:    ev.UserID,
			Role:      ev.Role,
			Success:   ev.OK,
			Metadata:  meta,
		})
	}
}

func (e *Engine) onSessionCorrupt(ctx context.Context, clientID, reason string) {
	e.metrics.Inc(MetricSessionCorruptReset)
	e.logger.Info("persisted session discarded", zap.String("client_id", clientID), zap.String("reason", reason))
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionCorruptReset,
		ClientID:  clientID,
		Success:   false,
		Error:     reason,
	})
}
