package database_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reuben-baek/entity-service/data"
	"github.com/reuben-baek/entity-service/database"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "database.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := database.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, database.DefaultConfig(), cfg)
	})
	t.Run("yaml", func(t *testing.T) {
		path := writeConfig(t, `
dialect: SQLite
dsn: file:entity.db
log_level: info
slow_threshold: 1s
max_open_conns: 4
query_cache_ttl: 30s
`)
		cfg, err := database.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Dialect)
		assert.Equal(t, "file:entity.db", cfg.DSN)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, time.Second, cfg.SlowThreshold)
		assert.Equal(t, 4, cfg.MaxOpenConns)
		assert.Equal(t, 30*time.Second, cfg.QueryCacheTTL)
	})
	t.Run("environment overrides yaml", func(t *testing.T) {
		path := writeConfig(t, "log_level: info\nmax_open_conns: 4\n")
		t.Setenv("ENTITY_DB_LOG_LEVEL", "silent")
		t.Setenv("ENTITY_DB_MAX_OPEN_CONNS", "8")
		t.Setenv("ENTITY_DB_REDIS_ADDR", "localhost:6379")

		cfg, err := database.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "silent", cfg.LogLevel)
		assert.Equal(t, 8, cfg.MaxOpenConns)
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	})
	t.Run("unknown dialect", func(t *testing.T) {
		t.Setenv("ENTITY_DB_DIALECT", "oracle")
		_, err := database.LoadConfig("")
		assert.ErrorIs(t, err, database.ErrUnknownDialect)
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("ENTITY_DB_DIALECT", "postgres")
		path := writeConfig(t, "dsn: \"\"\n")
		_, err := database.LoadConfig(path)
		assert.ErrorIs(t, err, database.ErrMissingDSN)
	})
	t.Run("unknown log level", func(t *testing.T) {
		path := writeConfig(t, "log_level: verbose\n")
		_, err := database.LoadConfig(path)
		assert.ErrorIs(t, err, database.ErrUnknownLogLevel)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := database.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestOpen(t *testing.T) {
	cfg := database.DefaultConfig()
	cfg.MaxOpenConns = 1
	db, err := database.Open(cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	assert.NoError(t, sqlDB.Ping())
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	t.Run("unknown dialect", func(t *testing.T) {
		cfg := database.DefaultConfig()
		cfg.Dialect = "oracle"
		_, err := database.Open(cfg)
		assert.ErrorIs(t, err, database.ErrUnknownDialect)
	})
}

func TestNewQueryCache(t *testing.T) {
	cache, closeCache := database.NewQueryCache(database.DefaultConfig())
	assert.IsType(t, &data.MemoryQueryCache{}, cache)
	assert.NoError(t, closeCache())

	cfg := database.DefaultConfig()
	cfg.RedisAddr = "localhost:6379"
	cache, closeCache = database.NewQueryCache(cfg)
	assert.IsType(t, &data.RedisQueryCache{}, cache)
	assert.NoError(t, closeCache())

	assert.Len(t, database.ServiceOptions(cache, cfg), 1)
}
