package resilience

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Backoff strategy names accepted by NewBackoffStrategy
const (
	BackoffFixed             = "fixed"
	BackoffLinear            = "linear"
	BackoffExponential       = "exponential"
	BackoffExponentialJitter = "exponential_jitter"
)

// BackoffStrategy computes the delay before the next retry attempt.
// attempt is 1-based: the delay after the first failed attempt is
// ComputeDelay(1, policy).
type BackoffStrategy interface {
	ComputeDelay(attempt int, policy RetryPolicy) time.Duration
}

// NewBackoffStrategy resolves a strategy by name. Unknown names are an
// error so misconfiguration surfaces at load time, not on the first retry.
func NewBackoffStrategy(name string) (BackoffStrategy, error) {
	switch name {
	case BackoffFixed:
		return &FixedBackoff{}, nil
	case BackoffLinear:
		return &LinearBackoff{}, nil
	case BackoffExponential:
		return &ExponentialBackoff{}, nil
	case BackoffExponentialJitter, "":
		return &ExponentialJitterBackoff{}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}

// FixedBackoff waits the base delay between every attempt
type FixedBackoff struct{}

// ComputeDelay returns the base delay, clamped
func (s *FixedBackoff) ComputeDelay(attempt int, policy RetryPolicy) time.Duration {
	return clampDelay(float64(policy.BaseDelay), policy.MaxDelay)
}

// LinearBackoff grows the delay linearly with the attempt number
type LinearBackoff struct{}

// ComputeDelay returns base delay * attempt, clamped
func (s *LinearBackoff) ComputeDelay(attempt int, policy RetryPolicy) time.Duration {
	return clampDelay(float64(policy.BaseDelay)*float64(attempt), policy.MaxDelay)
}

// ExponentialBackoff grows the delay geometrically with the attempt number
type ExponentialBackoff struct{}

// ComputeDelay returns base delay * multiplier^(attempt-1), clamped
func (s *ExponentialBackoff) ComputeDelay(attempt int, policy RetryPolicy) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt-1))
	return clampDelay(delay, policy.MaxDelay)
}

// ExponentialJitterBackoff is exponential backoff with a two-sided jitter
// draw: the delay is scaled by 1 + JitterFactor*U where U is uniform on
// [-1,1]. Jitter is skipped when the policy disables it.
type ExponentialJitterBackoff struct{}

// ComputeDelay returns the jittered exponential delay, clamped
func (s *ExponentialJitterBackoff) ComputeDelay(attempt int, policy RetryPolicy) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt-1))
	if policy.JitterEnabled && policy.JitterFactor > 0 {
		delay *= 1 + policy.JitterFactor*(2*rand.Float64()-1)
	}
	return clampDelay(delay, policy.MaxDelay)
}

// clampDelay bounds a computed delay to [0, max]
func clampDelay(delay float64, max time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if max > 0 && delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
