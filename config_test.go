package otpauth

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "redis-free client ttl zero valid",
			mutate:    func(c *Config) { c.Session.ClientTTL = 0 },
			wantValid: true,
		},
		{
			name:   "negative client ttl invalid",
			mutate: func(c *Config) { c.Session.ClientTTL = -time.Second },
		},
		{
			name:   "prefix with colon invalid",
			mutate: func(c *Config) { c.Session.RedisPrefix = "sf:x" },
		},
		{
			name:   "duplicate keys invalid",
			mutate: func(c *Config) { c.Session.RedirectKey = c.Session.TokenKey },
		},
		{
			name:   "empty cookie invalid",
			mutate: func(c *Config) { c.Session.ClientCookie = " " },
		},
		{
			name:   "external login path invalid",
			mutate: func(c *Config) { c.Routes.LoginPath = "https://evil.example/login" },
		},
		{
			name:   "protocol relative home invalid",
			mutate: func(c *Config) { c.Routes.AppHome = "//evil.example" },
		},
		{
			name:   "identical login paths invalid",
			mutate: func(c *Config) { c.Routes.AdminLoginPath = c.Routes.LoginPath },
		},
		{
			name:   "home on login path invalid",
			mutate: func(c *Config) { c.Routes.AdminHome = "/admin/login/" },
		},
		{
			name:   "zero cooldown invalid",
			mutate: func(c *Config) { c.Flow.ResendCooldown = 0 },
		},
		{
			name:   "idle shorter than cooldown invalid",
			mutate: func(c *Config) { c.Flow.IdleTimeout = 30 * time.Second },
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
		{
			name:   "empty retained audit type invalid",
			mutate: func(c *Config) { c.Audit.Retain = append(c.Audit.Retain, "") },
		},
		{
			name: "histograms without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid {
				if err == nil {
					t.Fatal("expected invalid config")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestWithConfigCopies(t *testing.T) {
	cfg := DefaultConfig()
	b := New().WithConfig(cfg).WithBackend(&stubBackend{})
	cfg.Routes.AdminHome = "/elsewhere"
	cfg.Audit.Retain[0] = "mutated"

	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if got := e.Routes().AdminHome; got != "/admin/dashboard" {
		t.Fatalf("config not copied, AdminHome = %q", got)
	}
	if got := e.Config().Audit.Retain[0]; got != AuditSessionCommit {
		t.Fatalf("retain list shared with caller, got %q", got)
	}
}
