package otpauth

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/internal/audit"
	"github.com/aircare/otpauth/kv"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	space  kv.Space

	backend    backend.Backend
	logger     *zap.Logger
	auditSink  AuditSink
	tokenCheck func(string) error
	now        func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis persists client state in Redis. Ignored when WithSpace is also used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSpace supplies the persistence space directly.
func (b *Builder) WithSpace(space kv.Space) *Builder {
	b.space = space
	return b
}

// WithBackend sets the challenge backend every flow talks to. Required.
func (b *Builder) WithBackend(be backend.Backend) *Builder {
	b.backend = be
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithTokenCheck validates persisted credential tokens on session restore,
// typically token.Manager.Check.
func (b *Builder) WithTokenCheck(check func(token string) error) *Builder {
	b.tokenCheck = check
	return b
}

// WithClock replaces time.Now for flow countdowns and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready engine.
//
// Without WithSpace or WithRedis client state lives in process memory.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, ErrBackendRequired
	}

	space := b.space
	if space == nil {
		if b.redis != nil {
			space = kv.NewRedisSpace(b.redis, cfg.Session.RedisPrefix, cfg.Session.ClientTTL)
		} else {
			space = kv.NewMemorySpace()
		}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:     cfg,
		space:      space,
		backend:    b.backend,
		logger:     logger,
		tokenCheck: b.tokenCheck,
		now:        now,
		metrics:    NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Retain:     cfg.Audit.Retain,
			Now:        now,
		}, b.auditSink),
	}

	b.built = true

	return engine, nil
}
