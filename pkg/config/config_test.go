package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/resilience"
)

// pointConfigFile keeps tests independent of any configs/storage.yaml in
// the working directory
func pointConfigFile(t *testing.T, path string) {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "nonexistent.yaml")
	}
	t.Setenv("STORAGE_CONFIG_FILE", path)
}

func TestLoad_Defaults(t *testing.T) {
	pointConfigFile(t, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)

	assert.True(t, cfg.Resilience.EnableRetry)
	assert.True(t, cfg.Resilience.EnableCircuitBreaker)
	assert.Equal(t, resilience.BackoffExponentialJitter, cfg.Resilience.BackoffStrategy)

	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Resilience.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Resilience.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Resilience.Retry.Multiplier)
	assert.True(t, cfg.Resilience.Retry.JitterEnabled)
	assert.Equal(t, 0.1, cfg.Resilience.Retry.JitterFactor)
	assert.Equal(t, 5*time.Second, cfg.Resilience.Retry.AttemptTimeout)
	assert.Equal(t, 60*time.Second, cfg.Resilience.Retry.TotalTimeout)

	assert.Equal(t, 5, cfg.Resilience.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 1, cfg.Resilience.CircuitBreaker.SuccessThreshold)
	assert.Equal(t, 30*time.Second, cfg.Resilience.CircuitBreaker.OpenTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.yaml")
	yaml := `
environment: production
storage:
  provider: s3
  s3:
    bucket: documents
    region: eu-west-1
resilience:
  backoff_strategy: linear
  retry:
    max_attempts: 5
    base_delay: 500ms
  circuit_breaker:
    failure_threshold: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	pointConfigFile(t, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, "documents", cfg.Storage.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
	assert.Equal(t, resilience.BackoffLinear, cfg.Resilience.BackoffStrategy)
	assert.Equal(t, 5, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.Retry.BaseDelay)
	assert.Equal(t, 10, cfg.Resilience.CircuitBreaker.FailureThreshold)

	// Values the file does not mention keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Resilience.Retry.MaxDelay)
}

func TestLoad_FlatEnvOverrides(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("MAX_ATTEMPTS", "7")
	t.Setenv("BACKOFF_MULTIPLIER", "3.0")
	t.Setenv("BACKOFF_STRATEGY", "fixed")
	t.Setenv("JITTER_ENABLED", "false")
	t.Setenv("FAILURE_THRESHOLD", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, 3.0, cfg.Resilience.Retry.Multiplier)
	assert.Equal(t, resilience.BackoffFixed, cfg.Resilience.BackoffStrategy)
	assert.False(t, cfg.Resilience.Retry.JitterEnabled)
	assert.Equal(t, 9, cfg.Resilience.CircuitBreaker.FailureThreshold)
}

func TestLoad_FlatEnvMillisecondDurations(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("BASE_DELAY_MS", "250")
	t.Setenv("MAX_DELAY_MS", "5000")
	t.Setenv("OPEN_TIMEOUT_MS", "10000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Resilience.Retry.BaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Resilience.Retry.MaxDelay)
	assert.Equal(t, 10*time.Second, cfg.Resilience.CircuitBreaker.OpenTimeout)
}

func TestLoad_PrefixedEnvOverrides(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("STORAGE_ENVIRONMENT", "staging")
	t.Setenv("STORAGE_STORAGE_PROVIDER", "s3")
	t.Setenv("STORAGE_STORAGE_S3_BUCKET", "uploads")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.Equal(t, "uploads", cfg.Storage.S3.Bucket)
}

func TestLoad_UnknownProvider(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("STORAGE_STORAGE_PROVIDER", "ftp")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("STORAGE_STORAGE_PROVIDER", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestLoad_UnknownBackoffStrategy(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("BACKOFF_STRATEGY", "fibonacci")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_OutOfRangeRetryPolicy(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resilience.retry")
}

func TestLoad_OutOfRangeCircuitBreaker(t *testing.T) {
	pointConfigFile(t, "")
	t.Setenv("FAILURE_THRESHOLD", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resilience.circuit_breaker")
}
