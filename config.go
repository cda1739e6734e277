package goIdentity

import (
	"errors"
	"time"
)

// Config is the engine configuration. Start from DefaultConfig and override
// individual fields.
type Config struct {
	Password      PasswordConfig
	Tokens        TokenConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and plaintext bounds used
// when the engine builds its own hasher.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
	// UpgradeOnLogin rehashes stale or legacy hashes after a successful login.
	UpgradeOnLogin bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig sets the entropy of generated auth keys, access tokens and
// the random part of reset tokens.
type TokenConfig struct {
	AuthKeyEntropyBits     int
	AccessTokenEntropyBits int
	ResetTokenEntropyBits  int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset-token lifetime.
type PasswordResetConfig struct {
	// ExpirySeconds is inclusive: a token issued exactly ExpirySeconds ago is still valid.
	ExpirySeconds int64
	// RotateAuthKey invalidates remembered logins after a reset or password change.
	RotateAuthKey bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig is the default quota used when no QuotaPolicy is supplied.
type RateLimitConfig struct {
	Limit         int
	WindowSeconds int64
	LockStripes   int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MinPasswordBytes: 10,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Tokens: TokenConfig{
			AuthKeyEntropyBits:     256,
			AccessTokenEntropyBits: 256,
			ResetTokenEntropyBits:  256,
		},
		PasswordReset: PasswordResetConfig{
			ExpirySeconds: int64(time.Hour / time.Second),
			RotateAuthKey: true,
		},
		RateLimit: RateLimitConfig{
			Limit:         2,
			WindowSeconds: 10,
			LockStripes:   256,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordBytes < 1 {
		return errors.New("Password MinPasswordBytes must be >= 1")
	}
	if c.Password.MaxPasswordBytes < c.Password.MinPasswordBytes {
		return errors.New("Password MaxPasswordBytes must be >= MinPasswordBytes")
	}

	// Tokens
	if c.Tokens.AuthKeyEntropyBits < 128 {
		return errors.New("Tokens AuthKeyEntropyBits must be >= 128")
	}
	if c.Tokens.AccessTokenEntropyBits < 128 {
		return errors.New("Tokens AccessTokenEntropyBits must be >= 128")
	}
	if c.Tokens.ResetTokenEntropyBits < 128 {
		return errors.New("Tokens ResetTokenEntropyBits must be >= 128")
	}

	// Password reset
	if c.PasswordReset.ExpirySeconds <= 0 {
		return errors.New("PasswordReset ExpirySeconds must be > 0")
	}

	// Rate limit
	if c.RateLimit.Limit <= 0 {
		return errors.New("RateLimit Limit must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return errors.New("RateLimit WindowSeconds must be > 0")
	}
	if c.RateLimit.LockStripes < 0 {
		return errors.New("RateLimit LockStripes must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
