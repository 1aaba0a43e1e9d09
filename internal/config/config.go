// Package config loads server settings from environment variables, with a
// .env file picked up when present. Every variable has a default that works
// against the production portal.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration.
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Index Configuration
	IndexPath string

	// Portal Configuration
	// PortalURL overrides the production portlet endpoint, used for tests
	// and staging mirrors. Empty means production.
	PortalURL         string
	ScrapeWorkers     int // 0 means one worker per CPU
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	RequestJitter     float64
	Fingerprint       string // "chrome", "firefox" or "go"

	// Archive Configuration
	ArchiveBackend string // "sqlite", "postgres", "ndjson" or "none"
	ArchiveDSN     string
}

// Load reads configuration from environment variables.
// It attempts to load a .env file first, then reads from env vars.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// Server Configuration
		Port:            getEnv("LANCER_PORT", "8080"),
		LogLevel:        getEnv("LANCER_LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("LANCER_SHUTDOWN_TIMEOUT", 30*time.Second),

		// Index Configuration
		IndexPath: getEnv("LANCER_INDEX_PATH", "data/courses.bleve"),

		// Portal Configuration
		PortalURL:         getEnv("LANCER_PORTAL_URL", ""),
		ScrapeWorkers:     getIntEnv("LANCER_SCRAPE_WORKERS", 0),
		RequestTimeout:    getDurationEnv("LANCER_REQUEST_TIMEOUT", 30*time.Second),
		RequestsPerSecond: getFloatEnv("LANCER_REQUESTS_PER_SECOND", 2.0),
		RequestJitter:     getFloatEnv("LANCER_REQUEST_JITTER", 0.5),
		Fingerprint:       getEnv("LANCER_FINGERPRINT", "chrome"),

		// Archive Configuration
		ArchiveBackend: getEnv("LANCER_ARCHIVE_BACKEND", "none"),
		ArchiveDSN:     getEnv("LANCER_ARCHIVE_DSN", ""),
	}

	switch cfg.ArchiveBackend {
	case "none", "sqlite", "ndjson":
	case "postgres":
		if cfg.ArchiveDSN == "" {
			return nil, fmt.Errorf("LANCER_ARCHIVE_BACKEND=postgres requires LANCER_ARCHIVE_DSN")
		}
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
	}

	switch cfg.Fingerprint {
	case "chrome", "firefox", "go":
	default:
		return nil, fmt.Errorf("unknown TLS fingerprint %q", cfg.Fingerprint)
	}

	return cfg, nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
