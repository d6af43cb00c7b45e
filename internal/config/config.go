package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Realtime transport selection values.
const (
	TransportPostgres = "postgres"
	TransportRedis    = "redis"
	TransportMemory   = "memory"
)

// Config holds application configuration. It is owned by the composition
// root and passed down by reference; there is no module-level cache.
// Reload is the explicit refresh operation.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	// RealtimeTransport picks how change events reach the views:
	// postgres (LISTEN/NOTIFY), redis (pub/sub relay), or memory (demo
	// and tests).
	RealtimeTransport  string
	RealtimeChannel    string
	RedisChannelPrefix string

	AdminJWTSecret string

	ViewDefaultLimit int
	ShutdownTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	c := &Config{}
	c.Reload()
	return c
}

// Reload re-reads every value from the environment in place. Callers that
// hold the pointer observe the refreshed values.
func (c *Config) Reload() {
	c.Port = getEnv("PORT", "8080")
	c.Env = getEnv("ENV", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.DatabaseURL = getEnv("DATABASE_URL", "")
	c.RedisAddr = getEnv("REDIS_ADDR", "redis:6379")
	c.RedisPassword = getEnv("REDIS_PASSWORD", "")
	c.RealtimeTransport = strings.ToLower(strings.TrimSpace(getEnv("REALTIME_TRANSPORT", TransportPostgres)))
	c.RealtimeChannel = getEnv("REALTIME_CHANNEL", "table_changes")
	c.RedisChannelPrefix = getEnv("REDIS_CHANNEL_PREFIX", "clinicflow:changes:")
	c.AdminJWTSecret = getEnv("ADMIN_JWT_SECRET", "")
	c.ViewDefaultLimit = getEnvAsInt("VIEW_DEFAULT_LIMIT", 200)
	c.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
