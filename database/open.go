package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reuben-baek/entity-service/data"
)

func parseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return logger.Silent, nil
	case "error":
		return logger.Error, nil
	case "", "warn":
		return logger.Warn, nil
	case "info":
		return logger.Info, nil
	default:
		return 0, fmt.Errorf("%q: %w", level, ErrUnknownLogLevel)
	}
}

// NewLogger returns a gorm logger writing through logrus.
func NewLogger(cfg Config) (logger.Interface, error) {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(logrus.StandardLogger(), logger.Config{
		SlowThreshold:             cfg.SlowThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	}), nil
}

func dialector(cfg Config) (gorm.Dialector, error) {
	switch cfg.Dialect {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Dialect, ErrUnknownDialect)
	}
}

// Open connects to the configured database and applies the pool limits.
func Open(cfg Config) (*gorm.DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	gormLogger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	logrus.Infof("database.Open: connected to %s", cfg.Dialect)
	return db, nil
}

// NewQueryCache returns a Redis backed cache when RedisAddr is set and a
// process-local one otherwise, with the function releasing it.
func NewQueryCache(cfg Config) (data.QueryCache, func() error) {
	if cfg.RedisAddr == "" {
		return data.NewMemoryQueryCache(), func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logrus.Infof("database.NewQueryCache: redis query cache at %s", cfg.RedisAddr)
	return data.NewRedisQueryCache(client), client.Close
}

// ServiceOptions returns the entity service options implied by cfg.
func ServiceOptions(cache data.QueryCache, cfg Config) []data.ServiceOption {
	return []data.ServiceOption{data.WithQueryCache(cache, cfg.QueryCacheTTL)}
}
