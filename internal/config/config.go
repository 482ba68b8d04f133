package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	// Database
	DatabaseDriver string
	DatabaseURL    string

	// Repair behaviour
	ApplyPreMarker bool
	DryRun         bool
	Explain        bool

	// Batch throttling, users per second (0 = unlimited)
	RepairRate  float64
	RepairBurst int

	// Logging
	LogLevel  string
	LogFormat string

	// Server
	Port       string
	AdminToken string
}

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var globalConfig *Config

// ResetForTesting resets the global config - used only in tests
func ResetForTesting() {
	globalConfig = nil
}

// Load loads configuration from environment variables
func Load() *Config {
	if globalConfig != nil {
		return globalConfig
	}

	globalConfig = &Config{
		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", DriverSQLite),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", "./zulip.db"),

		// The pre-marker write stays off unless explicitly requested
		ApplyPreMarker: parseBool(os.Getenv("FIX_UNREADS_APPLY_PRE_MARKER"), false),
		DryRun:         parseBool(os.Getenv("FIX_UNREADS_DRY_RUN"), false),
		Explain:        parseBool(os.Getenv("FIX_UNREADS_EXPLAIN"), false),

		RepairRate:  parseFloat(os.Getenv("REPAIR_RATE"), 0),
		RepairBurst: parseInt(os.Getenv("REPAIR_BURST"), 1),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "console"),

		Port:       getEnvOrDefault("PORT", "8080"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),
	}

	return globalConfig
}

// Get returns the current configuration
func Get() *Config {
	if globalConfig == nil {
		return Load()
	}
	return globalConfig
}

// IsPostgres reports whether the configured store is Postgres.
func (c *Config) IsPostgres() bool {
	return c.DatabaseDriver == DriverPostgres
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBool parses a boolean from string with a default value
func parseBool(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}

	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "true", "1", "yes", "on", "enabled":
		return true
	case "false", "0", "no", "off", "disabled":
		return false
	default:
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		return defaultValue
	}
}

func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat(value string, defaultValue float64) float64 {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
