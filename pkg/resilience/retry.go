package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/observability"
)

// OnRetryFunc is invoked before each backoff wait, for observability
type OnRetryFunc func(attempt int, err error, delay time.Duration)

// Executor retries a fallible operation according to a RetryPolicy, spacing
// attempts with a BackoffStrategy. An Executor is immutable and safe for
// concurrent use.
type Executor struct {
	policy   RetryPolicy
	strategy BackoffStrategy
	classify Classifier
	onRetry  OnRetryFunc
	logger   observability.Logger
}

// NewExecutor creates an Executor. The policy is validated up front so a
// bad configuration fails at construction, not on the first retry.
func NewExecutor(policy RetryPolicy, strategy BackoffStrategy, logger observability.Logger) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy %q: %w", policy.Name, err)
	}
	if strategy == nil {
		strategy = &ExponentialJitterBackoff{}
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	return &Executor{
		policy:   policy,
		strategy: strategy,
		classify: DefaultClassifier,
		logger:   logger.WithPrefix("retry"),
	}, nil
}

// WithClassifier returns a copy of the executor using a caller-supplied
// retryability predicate instead of the default classification
func (e *Executor) WithClassifier(classify Classifier) *Executor {
	clone := *e
	if classify != nil {
		clone.classify = classify
	}
	return &clone
}

// WithOnRetry returns a copy of the executor that invokes fn before every
// backoff wait
func (e *Executor) WithOnRetry(fn OnRetryFunc) *Executor {
	clone := *e
	clone.onRetry = fn
	return &clone
}

// Policy returns the executor's retry policy
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or
// exhausts the attempt or total-time budget. The context bounds the whole
// execution: cancellation aborts the in-flight attempt and any pending
// backoff wait.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteValue(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteValue runs a value-returning operation through the executor's
// retry loop. The zero value is returned alongside any error.
//
// Results travel through each attempt's own channel. An attempt abandoned
// at its timeout keeps producing into that channel and nowhere else, so a
// late completion can never surface a value or race with a later attempt.
func ExecuteValue[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if !e.policy.Enabled {
		return runAttempt(ctx, e, fn)
	}

	start := time.Now()
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		val, err := runAttempt(ctx, e, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if !e.classify(err) {
			e.logger.Debug("error not retryable", map[string]interface{}{
				"policy":  e.policy.Name,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return zero, err
		}

		elapsed := time.Since(start)
		if attempt >= e.policy.MaxAttempts || elapsed >= e.policy.TotalTimeout {
			return zero, &RetryExhaustedError{Attempts: attempt, LastErr: lastErr}
		}

		delay := e.strategy.ComputeDelay(attempt, e.policy)

		// The next wait would not fit in the remaining total budget, so the
		// attempt after it could never start in time. Fail fast instead of
		// sleeping through the budget.
		if e.policy.TotalTimeout-elapsed < delay {
			return zero, &RetryExhaustedError{Attempts: attempt, LastErr: lastErr}
		}

		if e.onRetry != nil {
			e.onRetry(attempt, err, delay)
		}
		e.logger.Warn("retrying after error", map[string]interface{}{
			"policy":       e.policy.Name,
			"attempt":      attempt,
			"max_attempts": e.policy.MaxAttempts,
			"delay":        delay,
			"error":        err.Error(),
		})

		if err := sleepContext(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// attemptResult carries one attempt's outcome through its channel
type attemptResult[T any] struct {
	val T
	err error
}

// runAttempt races one invocation of fn against the per-attempt timeout.
// The race is genuine: fn runs in its own goroutine, so an operation that
// ignores its context still loses the race on time.
func runAttempt[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attemptCtx := ctx
	if e.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.policy.AttemptTimeout)
		defer cancel()
	}

	done := make(chan attemptResult[T], 1)
	go func() {
		val, err := fn(attemptCtx)
		done <- attemptResult[T]{val: val, err: err}
	}()

	select {
	case res := <-done:
		if err := e.completedErr(res.err, attemptCtx, ctx); err != nil {
			return zero, err
		}
		return res.val, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, Timeout(fmt.Errorf("attempt timed out after %s: %w", e.policy.AttemptTimeout, attemptCtx.Err()))
	}
}

// completedErr decides how a finished attempt's error surfaces. Only a
// genuine deadline error keeps the timeout classification; everything
// else, including a fatal error landing at the deadline boundary, is
// returned untouched so its own classification stays visible.
func (e *Executor) completedErr(err error, attemptCtx, parent context.Context) error {
	if err == nil || parent.Err() != nil || attemptCtx.Err() != context.DeadlineExceeded {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(fmt.Errorf("attempt timed out after %s: %w", e.policy.AttemptTimeout, err))
	}
	return err
}

// sleepContext waits for d or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
