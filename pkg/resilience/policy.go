package resilience

import (
	"fmt"
	"time"
)

// RetryPolicy configures retry behavior. Policies are immutable once
// constructed and safe to share across calls.
type RetryPolicy struct {
	// Name identifies the policy in logs and metrics
	Name string `mapstructure:"name" json:"name"`

	// Enabled toggles retrying; when false every operation gets one attempt
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// MaxAttempts is the total attempt budget, first call included
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts"`

	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration `mapstructure:"base_delay" json:"base_delay"`

	// MaxDelay caps every computed backoff delay
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay"`

	// Multiplier is the exponential backoff growth factor
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier"`

	// JitterEnabled toggles randomized perturbation of delays
	JitterEnabled bool `mapstructure:"jitter_enabled" json:"jitter_enabled"`

	// JitterFactor is the relative amplitude of the jitter draw
	JitterFactor float64 `mapstructure:"jitter_factor" json:"jitter_factor"`

	// AttemptTimeout bounds a single attempt
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`

	// TotalTimeout bounds the whole logical operation across attempts
	TotalTimeout time.Duration `mapstructure:"total_timeout" json:"total_timeout"`
}

// DefaultRetryPolicy returns the standard policy used for storage backends
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Name:           "default",
		Enabled:        true,
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterEnabled:  true,
		JitterFactor:   0.1,
		AttemptTimeout: 5 * time.Second,
		TotalTimeout:   60 * time.Second,
	}
}

// Validate checks every field against its allowed range
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 || p.MaxAttempts > 100 {
		return fmt.Errorf("max_attempts must be in [1,100], got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 100*time.Millisecond || p.BaseDelay > 60*time.Second {
		return fmt.Errorf("base_delay must be in [100ms,60s], got %s", p.BaseDelay)
	}
	if p.MaxDelay < 1*time.Second || p.MaxDelay > 300*time.Second {
		return fmt.Errorf("max_delay must be in [1s,300s], got %s", p.MaxDelay)
	}
	if p.Multiplier < 1.0 || p.Multiplier > 10.0 {
		return fmt.Errorf("multiplier must be in [1.0,10.0], got %g", p.Multiplier)
	}
	if p.JitterFactor < 0.0 || p.JitterFactor > 1.0 {
		return fmt.Errorf("jitter_factor must be in [0.0,1.0], got %g", p.JitterFactor)
	}
	if p.AttemptTimeout < 100*time.Millisecond || p.AttemptTimeout > 300*time.Second {
		return fmt.Errorf("attempt_timeout must be in [100ms,300s], got %s", p.AttemptTimeout)
	}
	if p.TotalTimeout < 1*time.Second || p.TotalTimeout > 600*time.Second {
		return fmt.Errorf("total_timeout must be in [1s,600s], got %s", p.TotalTimeout)
	}
	return nil
}

// CircuitBreakerConfig configures circuit breaker behavior
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive logical failures in
	// Closed before the breaker trips
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold"`

	// SuccessThreshold is the number of consecutive probe successes in
	// HalfOpen before the breaker closes
	SuccessThreshold int `mapstructure:"success_threshold" json:"success_threshold"`

	// OpenTimeout is how long the breaker stays Open before allowing a probe
	OpenTimeout time.Duration `mapstructure:"open_timeout" json:"open_timeout"`
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
	}
}

// Validate checks the thresholds and timeout
func (c CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("success_threshold must be >= 1, got %d", c.SuccessThreshold)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open_timeout must be positive, got %s", c.OpenTimeout)
	}
	return nil
}
