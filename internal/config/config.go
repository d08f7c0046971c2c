package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"datalens/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server ServerConfig
	Data   DataConfig
	Ops    OpsConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	APIPort string
	GinMode string
}

// DataConfig holds upload and ingestion settings
type DataConfig struct {
	MaxUploadBytes int64
	DefaultSheet   string
}

// OpsConfig holds engine operation settings
type OpsConfig struct {
	// Timeout bounds every table operation; on expiry the prior table
	// snapshot remains authoritative.
	Timeout time.Duration
	// MaxParallel bounds per-column/per-variable statistical workers
	MaxParallel int
}

// Load reads configuration from environment variables and validates it.
// A .env file is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			APIPort: getEnvOrDefault("API_PORT", "8081"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
		Data: DataConfig{
			MaxUploadBytes: int64(getEnvIntOrDefault("MAX_UPLOAD_MB", 32)) << 20,
			DefaultSheet:   getEnvOrDefault("EXCEL_SHEET", "Sheet1"),
		},
		Ops: OpsConfig{
			Timeout:     getEnvDurationOrDefault("OP_TIMEOUT", 30*time.Second),
			MaxParallel: getEnvIntOrDefault("MAX_PARALLEL", 4),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Data.MaxUploadBytes <= 0 {
		return errors.ConfigInvalid("upload size cap must be positive")
	}
	if config.Ops.Timeout <= 0 {
		return errors.ConfigInvalid("operation timeout must be positive")
	}
	if config.Ops.MaxParallel <= 0 {
		return errors.ConfigInvalid("worker bound must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
