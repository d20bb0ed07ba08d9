package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/models"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/observability"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/resilience"
)

// ResilienceConfig configures the resilient wrapper. Either layer can be
// bypassed independently, e.g. for local or test backends.
type ResilienceConfig struct {
	EnableRetry          bool   `mapstructure:"enable_retry" json:"enable_retry"`
	EnableCircuitBreaker bool   `mapstructure:"enable_circuit_breaker" json:"enable_circuit_breaker"`
	BackoffStrategy      string `mapstructure:"backoff_strategy" json:"backoff_strategy"`

	Retry          resilience.RetryPolicy          `mapstructure:"retry" json:"retry"`
	CircuitBreaker resilience.CircuitBreakerConfig `mapstructure:"circuit_breaker" json:"circuit_breaker"`
}

// DefaultResilienceConfig returns the standard wrapper configuration
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		EnableRetry:          true,
		EnableCircuitBreaker: true,
		BackoffStrategy:      resilience.BackoffExponentialJitter,
		Retry:                resilience.DefaultRetryPolicy(),
		CircuitBreaker:       resilience.DefaultCircuitBreakerConfig(),
	}
}

// ResilientStorage implements Provider by delegating to another Provider
// through a retry executor nested inside a circuit breaker. The breaker
// wraps the whole retrying call, so its failure counter advances once per
// logical operation, after retries are exhausted, not once per raw attempt.
type ResilientStorage struct {
	backend Provider
	config  ResilienceConfig
	breaker *resilience.CircuitBreaker
	retrier *resilience.Executor
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewResilientStorage wraps backend with retry and circuit breaker layers.
// Configuration problems (invalid ranges, unknown backoff strategy) are
// reported here rather than on the first call.
func NewResilientStorage(backend Provider, cfg ResilienceConfig, logger observability.Logger, metrics observability.MetricsClient) (*ResilientStorage, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend provider is required")
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	strategy, err := resilience.NewBackoffStrategy(cfg.BackoffStrategy)
	if err != nil {
		return nil, err
	}

	retrier, err := resilience.NewExecutor(cfg.Retry, strategy, logger)
	if err != nil {
		return nil, err
	}

	breaker, err := resilience.NewCircuitBreaker(cfg.Retry.Name, cfg.CircuitBreaker, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &ResilientStorage{
		backend: backend,
		config:  cfg,
		breaker: breaker,
		retrier: retrier,
		logger:  logger.WithPrefix("resilient-storage"),
		metrics: metrics,
	}, nil
}

// OnRetry registers an observability hook invoked before each backoff wait.
// Must be called before the wrapper is shared across goroutines.
func (r *ResilientStorage) OnRetry(fn resilience.OnRetryFunc) {
	r.retrier = r.retrier.WithOnRetry(fn)
}

// OnStateChange registers a hook for circuit breaker transitions.
// Must be called before the wrapper is shared across goroutines.
func (r *ResilientStorage) OnStateChange(fn resilience.StateChangeFunc) {
	r.breaker.OnStateChange(fn)
}

// executeOp routes one logical operation through the configured layers.
// Results flow back through the retry executor's channel-carried path, so
// an attempt abandoned at its timeout can never write into the value the
// caller observes. The breaker invokes its callback synchronously, which
// makes the single write to out safe.
func executeOp[T any](ctx context.Context, r *ResilientStorage, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	call := fn
	if r.config.EnableRetry {
		call = func(ctx context.Context) (T, error) {
			return resilience.ExecuteValue(ctx, r.retrier, fn)
		}
	}

	var out T
	var err error
	if r.config.EnableCircuitBreaker {
		err = r.breaker.Execute(ctx, func() error {
			v, callErr := call(ctx)
			if callErr != nil {
				return callErr
			}
			out = v
			return nil
		})
	} else {
		out, err = call(ctx)
	}

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		r.logger.Warn("call rejected by open circuit", map[string]interface{}{
			"operation": operation,
		})
	case errors.Is(err, resilience.ErrRetryExhausted):
		r.metrics.IncrementCounter("storage_retry_exhausted_total", 1)
	}

	if err != nil {
		return zero, err
	}
	return out, nil
}

// Upload stores a file through the resilience layers
func (r *ResilientStorage) Upload(ctx context.Context, data []byte, filename string, mimeType string) (*models.FileInfo, error) {
	return executeOp(ctx, r, "upload", func(ctx context.Context) (*models.FileInfo, error) {
		return r.backend.Upload(ctx, data, filename, mimeType)
	})
}

// Download retrieves a file through the resilience layers
func (r *ResilientStorage) Download(ctx context.Context, filename string) ([]byte, error) {
	return executeOp(ctx, r, "download", func(ctx context.Context) ([]byte, error) {
		return r.backend.Download(ctx, filename)
	})
}

// Delete removes a file through the resilience layers
func (r *ResilientStorage) Delete(ctx context.Context, filename string) error {
	_, err := executeOp(ctx, r, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.backend.Delete(ctx, filename)
	})
	return err
}

// Exists checks file presence through the resilience layers
func (r *ResilientStorage) Exists(ctx context.Context, filename string) (bool, error) {
	return executeOp(ctx, r, "exists", func(ctx context.Context) (bool, error) {
		return r.backend.Exists(ctx, filename)
	})
}

// ListFiles lists files through the resilience layers
func (r *ResilientStorage) ListFiles(ctx context.Context) ([]models.FileInfo, error) {
	return executeOp(ctx, r, "list_files", func(ctx context.Context) ([]models.FileInfo, error) {
		return r.backend.ListFiles(ctx)
	})
}

// GetFileInfo fetches file metadata through the resilience layers
func (r *ResilientStorage) GetFileInfo(ctx context.Context, filename string) (*models.FileInfo, error) {
	return executeOp(ctx, r, "get_file_info", func(ctx context.Context) (*models.FileInfo, error) {
		return r.backend.GetFileInfo(ctx, filename)
	})
}

// GetStorageConfig describes the wrapped backing store
func (r *ResilientStorage) GetStorageConfig(ctx context.Context) (*models.StorageConfig, error) {
	return executeOp(ctx, r, "get_storage_config", func(ctx context.Context) (*models.StorageConfig, error) {
		return r.backend.GetStorageConfig(ctx)
	})
}

// HealthCheck probes the backend through the resilience layers
func (r *ResilientStorage) HealthCheck(ctx context.Context) (bool, error) {
	return executeOp(ctx, r, "health_check", func(ctx context.Context) (bool, error) {
		return r.backend.HealthCheck(ctx)
	})
}

// CircuitBreakerState returns the current breaker state
func (r *ResilientStorage) CircuitBreakerState() resilience.CircuitBreakerState {
	return r.breaker.State()
}

// CircuitBreakerMetrics returns a snapshot of the breaker counters
func (r *ResilientStorage) CircuitBreakerMetrics() resilience.CircuitBreakerMetrics {
	return r.breaker.Metrics()
}

// ResilienceConfig returns the wrapper's configuration
func (r *ResilientStorage) ResilienceConfig() ResilienceConfig {
	return r.config
}

// ResetCircuitBreaker forces the breaker back to Closed. Operational
// override; normal recovery goes through the half-open probe cycle.
func (r *ResilientStorage) ResetCircuitBreaker() {
	r.breaker.Reset()
}
