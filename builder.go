package goIdentity

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/password"
)

// Builder assembles an Engine. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	store  IdentityStore
	hasher SecureHash
	clock  Clock
	policy QuotaPolicy
	logger *slog.Logger

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the identity store. Required.
func (b *Builder) WithStore(store IdentityStore) *Builder {
	b.store = store
	return b
}

// WithSecureHash overrides the Argon2id hasher built from Config.Password.
func (b *Builder) WithSecureHash(hasher SecureHash) *Builder {
	b.hasher = hasher
	return b
}

// WithClock overrides SystemClock.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithQuotaPolicy overrides the fixed quota from Config.RateLimit.
func (b *Builder) WithQuotaPolicy(policy QuotaPolicy) *Builder {
	b.policy = policy
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination and enables the dispatcher.
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

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	clock := b.clock
	if clock == nil {
		clock = SystemClock{}
	}

	// -------- SECURE HASH --------
	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(password.Config{
			Memory:           cfg.Password.Memory,
			Time:             cfg.Password.Time,
			Parallelism:      cfg.Password.Parallelism,
			SaltLength:       cfg.Password.SaltLength,
			KeyLength:        cfg.Password.KeyLength,
			MinPasswordBytes: cfg.Password.MinPasswordBytes,
			MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
		})
		if err != nil {
			return nil, err
		}
		hasher = argon
	}

	// -------- CREDENTIALS --------
	credentials, err := NewCredentialManager(b.store, hasher, clock, CredentialConfig{
		AuthKeyEntropyBits:     cfg.Tokens.AuthKeyEntropyBits,
		AccessTokenEntropyBits: cfg.Tokens.AccessTokenEntropyBits,
		ResetTokenEntropyBits:  cfg.Tokens.ResetTokenEntropyBits,
	}, logger)
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITER --------
	policy := b.policy
	if policy == nil {
		policy = FixedQuota(Quota{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.WindowSeconds})
	}
	limiter, err := NewRateLimiter(b.store, clock, policy,
		WithLockStripes(cfg.RateLimit.LockStripes),
		WithRateLimitLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	// -------- AUDIT --------
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
		if cfg.Audit.BufferSize <= 0 {
			cfg.Audit.BufferSize = defaultConfig().Audit.BufferSize
		}
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return &Engine{
		config:      cfg,
		store:       b.store,
		hasher:      hasher,
		clock:       clock,
		credentials: credentials,
		limiter:     limiter,
		mutations:   rate.NewKeyedMutex(cfg.RateLimit.LockStripes),
		audit:       dispatcher,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
	}, nil
}
