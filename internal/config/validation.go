package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"fixunreads/internal/secrets"
)

// ValidateEnvironmentConfig validates the environment for local use
func ValidateEnvironmentConfig() error {
	return ValidateEnvironmentConfigStrict(false)
}

// ValidateEnvironmentConfigStrict validates with optional strict mode.
// Strict mode also resolves secret references and requires an admin token.
func ValidateEnvironmentConfigStrict(strict bool) error {
	var errors []string

	if err := validateDatabaseConfig(strict); err != nil {
		errors = append(errors, fmt.Sprintf("Database: %v", err))
	}

	if err := validateRepairConfig(); err != nil {
		errors = append(errors, fmt.Sprintf("Repair: %v", err))
	}

	if err := validateServerConfig(strict); err != nil {
		errors = append(errors, fmt.Sprintf("Server: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validateDatabaseConfig(strict bool) error {
	cfg := Get()

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER %q is not supported (use %q or %q)",
			cfg.DatabaseDriver, DriverSQLite, DriverPostgres)
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}

	if secrets.IsSecretReference(cfg.DatabaseURL) {
		if !strict {
			return nil
		}
		dsn, err := secrets.ResolveDatabaseURL(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to resolve DATABASE_URL: %w", err)
		}
		if dsn == "" {
			return fmt.Errorf("DATABASE_URL secret is empty")
		}
	}

	return nil
}

func validateRepairConfig() error {
	cfg := Get()

	if cfg.RepairRate < 0 {
		return fmt.Errorf("REPAIR_RATE must not be negative, got %v", cfg.RepairRate)
	}
	if cfg.RepairBurst < 1 {
		return fmt.Errorf("REPAIR_BURST must be at least 1, got %d", cfg.RepairBurst)
	}

	return nil
}

func validateServerConfig(strict bool) error {
	cfg := Get()

	if strict && cfg.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is not set (required by serve)")
	}
	if cfg.AdminToken != "" && len(cfg.AdminToken) < 16 {
		return fmt.Errorf("ADMIN_TOKEN is too short (minimum 16 characters)")
	}

	return nil
}

// WarnAboutUnhandledEnvVars checks for potentially unhandled environment variables
func WarnAboutUnhandledEnvVars() []string {
	handledVars := map[string]bool{
		"GIN_MODE":                     true,
		"PORT":                         true,
		"ADMIN_TOKEN":                  true,
		"GOOGLE_CLOUD_PROJECT":         true,
		"DATABASE_DRIVER":              true,
		"DATABASE_URL":                 true,
		"FIX_UNREADS_APPLY_PRE_MARKER": true,
		"FIX_UNREADS_DRY_RUN":          true,
		"FIX_UNREADS_EXPLAIN":          true,
		"REPAIR_RATE":                  true,
		"REPAIR_BURST":                 true,
		"LOG_LEVEL":                    true,
		"LOG_FORMAT":                   true,
	}

	var unhandled []string
	for _, env := range os.Environ() {
		key, _, found := strings.Cut(env, "=")
		if !found {
			continue
		}

		// Only look at variables that share a prefix with ours
		if !strings.HasPrefix(key, "FIX_UNREADS_") &&
			!strings.HasPrefix(key, "DATABASE_") &&
			!strings.HasPrefix(key, "REPAIR_") &&
			!strings.HasPrefix(key, "LOG_") {
			continue
		}

		if !handledVars[key] {
			unhandled = append(unhandled, key)
		}
	}

	return unhandled
}
