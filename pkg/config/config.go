// Package config loads the storage and resilience configuration from a
// YAML file and environment variables, validates it, and hands out the
// structs the rest of the system is constructed from.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/observability"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/resilience"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/storage"
)

// StorageSettings selects and configures the storage backend
type StorageSettings struct {
	Provider string           `mapstructure:"provider"`
	S3       storage.S3Config `mapstructure:"s3"`
}

// Config holds the complete configuration for the storage subsystem
type Config struct {
	Environment string                      `mapstructure:"environment"`
	Storage     StorageSettings             `mapstructure:"storage"`
	Resilience  storage.ResilienceConfig    `mapstructure:"resilience"`
	Logging     observability.LoggingConfig `mapstructure:"logging"`
}

// Load reads configuration from file and environment variables. Invalid
// values, including unknown backoff strategy names, fail here rather than
// at call time.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("STORAGE_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/storage.yaml"
	}
	v.SetConfigFile(configFile)

	// Environment variables prefixed with STORAGE_ map onto config keys
	v.SetEnvPrefix("STORAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlatEnv(v)

	v.AllowEmptyEnv(true)

	if err := v.ReadInConfig(); err != nil {
		// Config file is not required if environment variables are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configFile); !os.IsNotExist(statErr) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindFlatEnv binds the documented flat environment variables, commonly
// set in container environments, onto their config keys
func bindFlatEnv(v *viper.Viper) {
	// Best effort - viper handles errors internally
	_ = v.BindEnv("resilience.retry.enabled", "ENABLED")
	_ = v.BindEnv("resilience.retry.max_attempts", "MAX_ATTEMPTS")
	_ = v.BindEnv("resilience.retry.base_delay", "BASE_DELAY_MS")
	_ = v.BindEnv("resilience.retry.max_delay", "MAX_DELAY_MS")
	_ = v.BindEnv("resilience.retry.multiplier", "BACKOFF_MULTIPLIER")
	_ = v.BindEnv("resilience.retry.jitter_enabled", "JITTER_ENABLED")
	_ = v.BindEnv("resilience.retry.jitter_factor", "JITTER_FACTOR")
	_ = v.BindEnv("resilience.retry.attempt_timeout", "ATTEMPT_TIMEOUT_MS")
	_ = v.BindEnv("resilience.retry.total_timeout", "TOTAL_TIMEOUT_MS")
	_ = v.BindEnv("resilience.backoff_strategy", "BACKOFF_STRATEGY")
	_ = v.BindEnv("resilience.circuit_breaker.failure_threshold", "FAILURE_THRESHOLD")
	_ = v.BindEnv("resilience.circuit_breaker.success_threshold", "SUCCESS_THRESHOLD")
	_ = v.BindEnv("resilience.circuit_breaker.open_timeout", "OPEN_TIMEOUT_MS")

	// The *_MS variables carry bare millisecond counts. Viper would parse
	// them as nanoseconds, so normalize them up front.
	for _, key := range []string{
		"resilience.retry.base_delay",
		"resilience.retry.max_delay",
		"resilience.retry.attempt_timeout",
		"resilience.retry.total_timeout",
		"resilience.circuit_breaker.open_timeout",
	} {
		raw := v.GetString(key)
		if raw == "" {
			continue
		}
		if ms, err := time.ParseDuration(raw + "ms"); err == nil {
			v.Set(key, ms)
		}
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	// Storage defaults
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.upload_part_size", int64(5*1024*1024))
	v.SetDefault("storage.s3.download_part_size", int64(5*1024*1024))
	v.SetDefault("storage.s3.concurrency", 5)
	v.SetDefault("storage.s3.request_timeout", 30*time.Second)

	// Retry defaults
	v.SetDefault("resilience.enable_retry", true)
	v.SetDefault("resilience.enable_circuit_breaker", true)
	v.SetDefault("resilience.backoff_strategy", resilience.BackoffExponentialJitter)
	v.SetDefault("resilience.retry.name", "storage")
	v.SetDefault("resilience.retry.enabled", true)
	v.SetDefault("resilience.retry.max_attempts", 3)
	v.SetDefault("resilience.retry.base_delay", 1*time.Second)
	v.SetDefault("resilience.retry.max_delay", 30*time.Second)
	v.SetDefault("resilience.retry.multiplier", 2.0)
	v.SetDefault("resilience.retry.jitter_enabled", true)
	v.SetDefault("resilience.retry.jitter_factor", 0.1)
	v.SetDefault("resilience.retry.attempt_timeout", 5*time.Second)
	v.SetDefault("resilience.retry.total_timeout", 60*time.Second)

	// Circuit breaker defaults
	v.SetDefault("resilience.circuit_breaker.failure_threshold", 5)
	v.SetDefault("resilience.circuit_breaker.success_threshold", 1)
	v.SetDefault("resilience.circuit_breaker.open_timeout", 30*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 provider")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}

	if _, err := resilience.NewBackoffStrategy(c.Resilience.BackoffStrategy); err != nil {
		return err
	}
	if err := c.Resilience.Retry.Validate(); err != nil {
		return fmt.Errorf("resilience.retry: %w", err)
	}
	if err := c.Resilience.CircuitBreaker.Validate(); err != nil {
		return fmt.Errorf("resilience.circuit_breaker: %w", err)
	}

	return nil
}
