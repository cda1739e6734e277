// Package appconfig loads identityctl settings: defaults, then an optional
// YAML file, then GOIDENTITY_* environment variables.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GOIDENTITY_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Audit sinks.
const (
	SinkNone     = "none"
	SinkLog      = "log"
	SinkJSON     = "json"
	SinkRabbitMQ = "rabbitmq"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
	Password  PasswordConfig  `yaml:"password"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reset     ResetConfig     `yaml:"reset"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type AuditConfig struct {
	Sink        string `yaml:"sink"`
	RabbitMQURL string `yaml:"rabbitmq_url"`
	Queue       string `yaml:"queue"`
}

type PasswordConfig struct {
	MemoryKB    uint32 `yaml:"memory_kb"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
}

type RateLimitConfig struct {
	Limit         int   `yaml:"limit"`
	WindowSeconds int64 `yaml:"window_seconds"`
}

type ResetConfig struct {
	ExpirySeconds int64 `yaml:"expiry_seconds"`
}

// Defaults mirrors goIdentity.DefaultConfig with an in-memory store.
func Defaults() Config {
	engine := goIdentity.DefaultConfig()
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			Driver:      DriverMemory,
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "gi",
		},
		Audit: AuditConfig{
			Sink:  SinkNone,
			Queue: "identity.audit",
		},
		Password: PasswordConfig{
			MemoryKB:    engine.Password.Memory,
			Time:        engine.Password.Time,
			Parallelism: engine.Password.Parallelism,
		},
		RateLimit: RateLimitConfig{
			Limit:         engine.RateLimit.Limit,
			WindowSeconds: engine.RateLimit.WindowSeconds,
		},
		Reset: ResetConfig{
			ExpirySeconds: engine.PasswordReset.ExpirySeconds,
		},
	}
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Existing variables win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Load applies defaults, the YAML file at path (skipped when empty) and
// environment overrides, then validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("STORE_DRIVER", &cfg.Store.Driver)
	setString("REDIS_ADDR", &cfg.Store.RedisAddr)
	setString("REDIS_PREFIX", &cfg.Store.RedisPrefix)
	setString("POSTGRES_DSN", &cfg.Store.PostgresDSN)
	setString("AUDIT_SINK", &cfg.Audit.Sink)
	setString("RABBITMQ_URL", &cfg.Audit.RabbitMQURL)
	setString("AUDIT_QUEUE", &cfg.Audit.Queue)

	if v, ok := lookup("RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", envPrefix, err)
		}
		cfg.RateLimit.Limit = n
	}
	if v, ok := lookup("RATE_WINDOW_SECONDS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_WINDOW_SECONDS: %w", envPrefix, err)
		}
		cfg.RateLimit.WindowSeconds = n
	}
	if v, ok := lookup("RESET_EXPIRY_SECONDS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sRESET_EXPIRY_SECONDS: %w", envPrefix, err)
		}
		cfg.Reset.ExpirySeconds = n
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Audit.Sink {
	case SinkNone, SinkLog, SinkJSON:
	case SinkRabbitMQ:
		if c.Audit.RabbitMQURL == "" {
			return errors.New("audit.rabbitmq_url is required for the rabbitmq sink")
		}
	default:
		return fmt.Errorf("unknown audit sink %q", c.Audit.Sink)
	}

	engine := c.Engine()
	return engine.Validate()
}

// Engine maps the file settings onto an engine configuration.
func (c Config) Engine() goIdentity.Config {
	cfg := goIdentity.DefaultConfig()
	cfg.Password.Memory = c.Password.MemoryKB
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism
	cfg.RateLimit.Limit = c.RateLimit.Limit
	cfg.RateLimit.WindowSeconds = c.RateLimit.WindowSeconds
	cfg.PasswordReset.ExpirySeconds = c.Reset.ExpirySeconds
	cfg.Audit.Enabled = c.Audit.Sink != SinkNone
	return cfg
}
