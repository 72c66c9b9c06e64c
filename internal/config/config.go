package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Application settings
	AppEnv        string
	AppPort       int
	RunMigrations bool

	// Database settings
	DatabaseURL                string
	DatabaseMaxConnections     int
	DatabaseMaxIdleConnections int
	DatabaseConnectionLifetime time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// NATS settings
	NATSURL string

	// Workbook ingestion
	WorkbookMaxBytes int64

	// Task orchestration
	TaskDefaultTimeout  time.Duration
	StageWorkerPoolSize int

	// Reference data
	RefdataCacheTTL time.Duration

	// Sequence allocation
	IDSequenceBatchSize int

	// Scheduling defaults
	FeederChangeoverMinutes int

	// MES dispatch
	MESDispatchURL         string
	MESDispatchMaxRetries  int
	MESDispatchRatePerSec  float64
	MESDispatchBurst       int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		AppPort:       getEnvAsInt("APP_PORT", 8080),
		RunMigrations: getEnvAsBool("RUN_MIGRATIONS", false),

		DatabaseURL:                getEnv("DATABASE_URL", ""),
		DatabaseMaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
		DatabaseMaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		DatabaseConnectionLifetime: getEnvAsDuration("DATABASE_CONNECTION_LIFETIME", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		NATSURL: getEnv("NATS_URL", "nats://localhost:4222"),

		WorkbookMaxBytes: getEnvAsInt64("WORKBOOK_MAX_BYTES", 50*1024*1024),

		TaskDefaultTimeout:  getEnvAsDuration("TASK_DEFAULT_TIMEOUT", 15*time.Minute),
		StageWorkerPoolSize: getEnvAsInt("STAGE_WORKER_POOL_SIZE", 0),

		RefdataCacheTTL: getEnvAsDuration("REFDATA_CACHE_TTL", 5*time.Minute),

		IDSequenceBatchSize: getEnvAsInt("ID_SEQUENCE_BATCH_SIZE", 100),

		FeederChangeoverMinutes: getEnvAsInt("FEEDER_CHANGEOVER_MINUTES", 20),

		MESDispatchURL:        getEnv("MES_DISPATCH_URL", ""),
		MESDispatchMaxRetries: getEnvAsInt("MES_DISPATCH_MAX_RETRIES", 3),
		MESDispatchRatePerSec: getEnvAsFloat("MES_DISPATCH_RATE_PER_SEC", 5),
		MESDispatchBurst:      getEnvAsInt("MES_DISPATCH_BURST", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.StageWorkerPoolSize < 0 {
		return fmt.Errorf("STAGE_WORKER_POOL_SIZE must not be negative")
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
