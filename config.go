package otpauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aircare/otpauth/flow"
	"github.com/aircare/otpauth/redirect"
	"github.com/aircare/otpauth/session"
)

// Config holds every tunable of an [Engine].
//
// Config values are copied by [Builder.WithConfig]; later mutation of the caller's copy
// has no effect on a built engine.
type Config struct {
	Routes  redirect.Routes
	Session SessionConfig
	Flow    FlowConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls where client state is persisted.
type SessionConfig struct {
	// RedisPrefix namespaces every client key: "<prefix>:<clientID>:<key>".
	RedisPrefix string
	// ClientTTL bounds how long an idle client's state survives. Zero keeps it forever.
	ClientTTL time.Duration

	IdentityKey string
	TokenKey    string
	RedirectKey string

	// ClientCookie names the cookie carrying the client ID.
	ClientCookie string
	CookieSecure bool
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig tunes the login and signup flows.
type FlowConfig struct {
	ResendCooldown time.Duration
	// IdleTimeout is how long a mounted flow may sit untouched before it is swept.
	IdleTimeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Retain lists event types never dropped under backpressure. Defaults to the
	// session events.
	Retain []string
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Routes: redirect.DefaultRoutes(),
		Session: SessionConfig{
			RedisPrefix:  "sf",
			ClientTTL:    30 * 24 * time.Hour,
			IdentityKey:  session.DefaultIdentityKey,
			TokenKey:     session.DefaultTokenKey,
			RedirectKey:  redirect.DefaultKey,
			ClientCookie: "sf_client",
			CookieSecure: true,
		},
		Flow: FlowConfig{
			ResendCooldown: flow.DefaultResendCooldown,
			IdleTimeout:    15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			Retain:     []string{AuditSessionCommit, AuditSessionClear, AuditSessionCorruptReset},
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	cfg.Audit.Retain = append([]string(nil), cfg.Audit.Retain...)
	return cfg
}

// Validate reports the first configuration problem, wrapped in [ErrInvalidConfig].
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	r := c.Routes
	for name, path := range map[string]string{
		"LoginPath":      r.LoginPath,
		"AdminLoginPath": r.AdminLoginPath,
		"AppHome":        r.AppHome,
		"AdminHome":      r.AdminHome,
	} {
		if !redirect.LocalPath(path) {
			return fmt.Errorf("Routes %s must be a local absolute path", name)
		}
	}
	if r.LoginPath == r.AdminLoginPath {
		return errors.New("Routes LoginPath and AdminLoginPath must differ")
	}
	if r.IsLoginPath(r.AppHome) || r.IsLoginPath(r.AdminHome) {
		return errors.New("Routes home paths must not be login paths")
	}

	// Session
	s := c.Session
	if strings.TrimSpace(s.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.Contains(s.RedisPrefix, ":") {
		return errors.New("Session RedisPrefix must not contain ':'")
	}
	if s.ClientTTL < 0 {
		return errors.New("Session ClientTTL must be >= 0")
	}
	if s.IdentityKey == "" || s.TokenKey == "" || s.RedirectKey == "" {
		return errors.New("Session keys must not be empty")
	}
	if s.IdentityKey == s.TokenKey || s.IdentityKey == s.RedirectKey || s.TokenKey == s.RedirectKey {
		return errors.New("Session keys must be distinct")
	}
	if strings.TrimSpace(s.ClientCookie) == "" {
		return errors.New("Session ClientCookie must not be empty")
	}

	// Flow
	if c.Flow.ResendCooldown <= 0 {
		return errors.New("Flow ResendCooldown must be > 0")
	}
	if c.Flow.IdleTimeout <= 0 {
		return errors.New("Flow IdleTimeout must be > 0")
	}
	if c.Flow.IdleTimeout <= c.Flow.ResendCooldown {
		return errors.New("Flow IdleTimeout must exceed ResendCooldown")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	for _, t := range c.Audit.Retain {
		if t == "" {
			return errors.New("Audit Retain must not contain empty event types")
		}
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
