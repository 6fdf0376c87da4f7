// Package config provides configuration for the relay.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Upstream agent
	AgentEndpoint string
	AgentTimeout  time.Duration

	// Streaming
	HeartbeatInterval time.Duration

	// Execution buffer retention
	RetentionTTL  time.Duration
	SweepInterval time.Duration

	// Session metadata store
	DatabaseURL string

	// Auth: comma-separated "token:user_id" pairs. Empty disables auth.
	APIKeys string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		AgentEndpoint:     getEnv("AGENT_ENDPOINT", "http://localhost:8091"),
		AgentTimeout:      time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_MS", 20000)) * time.Millisecond,
		RetentionTTL:      time.Duration(getEnvInt("RETENTION_TTL_MS", 3600000)) * time.Millisecond,
		SweepInterval:     time.Duration(getEnvInt("SWEEP_INTERVAL_MS", 60000)) * time.Millisecond,
		DatabaseURL:       getEnv("DATABASE_URL", "file:relay.db?cache=shared&mode=rwc"),
		APIKeys:           getEnv("API_KEYS", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
