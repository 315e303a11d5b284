package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// config is read from STOREFRONT_* environment variables.
type config struct {
	Addr    string `env:"ADDR" envDefault:":8080"`
	APIAddr string `env:"API_ADDR" envDefault:":8081"`
	// APIURL points serve at a remote OTP API. Empty runs the OTP service in process.
	APIURL string `env:"API_URL"`

	RedisAddr   string `env:"REDIS_ADDR"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"sf"`
	DatabaseURL string `env:"DATABASE_URL"`

	TokenSecret string        `env:"TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	TokenIssuer string        `env:"TOKEN_ISSUER" envDefault:"aircare"`

	SMSLocalKey    string `env:"SMSLOCAL_API_KEY"`
	SMSLocalSender string `env:"SMSLOCAL_SENDER"`
	RevealCodes    bool   `env:"REVEAL_CODES"`

	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	ResendCooldown time.Duration `env:"RESEND_COOLDOWN" envDefault:"60s"`
	FlowIdle       time.Duration `env:"FLOW_IDLE" envDefault:"15m"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	AuditLog       bool          `env:"AUDIT_LOG"`

	// OTLPEndpoint enables OTLP/gRPC metric export alongside /metrics.
	OTLPEndpoint string        `env:"OTLP_ENDPOINT"`
	OTLPInsecure bool          `env:"OTLP_INSECURE"`
	OTLPInterval time.Duration `env:"OTLP_INTERVAL" envDefault:"10s"`
	Debug          bool          `env:"DEBUG"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "STOREFRONT_"}); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
