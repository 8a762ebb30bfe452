// Package database opens the gorm session entity services run on and the
// query cache they may share.
package database

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "ENTITY_DB_"

var (
	ErrUnknownDialect  = errors.New("database: unknown dialect")
	ErrUnknownLogLevel = errors.New("database: unknown log level")
	ErrMissingDSN      = errors.New("database: dsn is required")
)

// Config holds connection settings. LoadConfig reads them from an optional
// YAML file and then from ENTITY_DB_* environment variables.
type Config struct {
	// Dialect is "sqlite" or "postgres".
	// Default: "sqlite"
	Dialect string `yaml:"dialect" env:"DIALECT"`

	// DSN is passed to the dialect driver unchanged.
	// Default: "file::memory:"
	DSN string `yaml:"dsn" env:"DSN"`

	// LogLevel of the SQL logger: silent, error, warn or info.
	// Default: "warn"
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// SlowThreshold marks statements slower than this as slow in the SQL log.
	// Default: 200ms
	SlowThreshold time.Duration `yaml:"slow_threshold" env:"SLOW_THRESHOLD"`

	// Pool limits; zero keeps the database/sql default.
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`

	// QueryCacheTTL bounds how long cacheable query results are kept.
	// Default: 1m
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl" env:"QUERY_CACHE_TTL"`

	// RedisAddr selects a Redis query cache; empty keeps results in process.
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
}

func DefaultConfig() Config {
	return Config{
		Dialect:       "sqlite",
		DSN:           "file::memory:",
		LogLevel:      "warn",
		SlowThreshold: 200 * time.Millisecond,
		QueryCacheTTL: time.Minute,
	}
}

// LoadConfig starts from DefaultConfig, applies the YAML file at path when
// path is not empty and finally the environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Dialect = strings.ToLower(strings.TrimSpace(c.Dialect))
	switch c.Dialect {
	case "":
		c.Dialect = "sqlite"
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%q: %w", c.Dialect, ErrUnknownDialect)
	}
	if c.DSN == "" {
		if c.Dialect == "postgres" {
			return ErrMissingDSN
		}
		c.DSN = "file::memory:"
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	return nil
}
