package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "API_URL", "TOKEN_STORE", "TOKEN_DB_PATH", "REDIS_ADDR",
		"REDIS_PASSWORD", "REDIS_DB", "HTTP_TIMEOUT_SECONDS", "STATUS_GRPC_PORT",
		"STATUS_PROBE_INTERVAL_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadFromEnv()
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, StoreSQLite, cfg.TokenStore)
	assert.Equal(t, "./data/session.db", cfg.TokenDBPath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 50061, cfg.StatusPort)
	assert.Equal(t, 15*time.Second, cfg.ProbeInterval)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("API_URL", "https://tickets.example.com")
	t.Setenv("TOKEN_STORE", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "5")
	t.Setenv("STATUS_GRPC_PORT", "not-a-port")

	cfg := LoadFromEnv()
	assert.Equal(t, "https://tickets.example.com", cfg.APIURL)
	assert.Equal(t, StoreRedis, cfg.TokenStore)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 50061, cfg.StatusPort, "invalid numbers fall back to the default")
}

func TestLoadFromEnv_UnknownStoreFallsBack(t *testing.T) {
	t.Setenv("TOKEN_STORE", "etcd")
	assert.Equal(t, StoreSQLite, LoadFromEnv().TokenStore)
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger, err := NewLogger(&Config{AppEnv: env})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}
