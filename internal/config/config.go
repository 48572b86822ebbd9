package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Token store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	AppEnv        string
	APIURL        string
	HTTPTimeout   time.Duration
	TokenStore    string
	TokenDBPath   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatusPort    int
	ProbeInterval time.Duration
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	store := strings.ToLower(getEnv("TOKEN_STORE", StoreSQLite))
	switch store {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		store = StoreSQLite
	}

	return &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		APIURL:        getEnv("API_URL", "http://localhost:8000"),
		HTTPTimeout:   time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		TokenStore:    store,
		TokenDBPath:   getEnv("TOKEN_DB_PATH", "./data/session.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		StatusPort:    getEnvInt("STATUS_GRPC_PORT", 50061),
		ProbeInterval: time.Duration(getEnvInt("STATUS_PROBE_INTERVAL_SECONDS", 15)) * time.Second,
	}
}

// NewLogger creates a new Zap logger based on the config.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.AppEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
