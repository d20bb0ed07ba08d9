// Package resilience provides circuit breaker and retry logic for the
// storage backends. Retries handle transient faults inside one logical
// operation; the circuit breaker gates logical operations against a
// backend that keeps failing.
package resilience

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call
	// without contacting the backend
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRetryExhausted is returned when all retry attempts failed
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// ErrorKind classifies a failure for retry decisions
type ErrorKind int

const (
	// KindTransient is a temporary fault (network blip, throttling); retryable
	KindTransient ErrorKind = iota

	// KindTimeout means an attempt or budget deadline was exceeded; retryable
	KindTimeout

	// KindFatal is a permanent fault (validation, not-found, permission); never retried
	KindFatal

	// KindCircuitOpen means the call was rejected by the circuit breaker
	KindCircuitOpen
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindFatal:
		return "fatal"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with an explicit kind and retryability
type ClassifiedError struct {
	Kind      ErrorKind
	Retryable bool
	Err       error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable transient failure
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindTransient, Retryable: true, Err: err}
}

// Timeout wraps err as a retryable timeout failure
func Timeout(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindTimeout, Retryable: true, Err: err}
}

// Fatal wraps err as a permanent failure that must not be retried
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindFatal, Retryable: false, Err: err}
}

// CircuitOpen reports a call rejected by an open circuit breaker. The
// error matches ErrCircuitOpen and is never retried.
func CircuitOpen() error {
	return &ClassifiedError{Kind: KindCircuitOpen, Retryable: false, Err: ErrCircuitOpen}
}

// RetryExhaustedError reports the last underlying error after the retry
// budget ran out, together with the number of attempts made
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempt(s): %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Classifier decides whether an error is worth another attempt
type Classifier func(err error) bool

// DefaultClassifier is the classification used when no override is supplied:
// an explicit ClassifiedError speaks for itself, attempt deadlines are
// retryable, caller cancellation is not, and everything else is treated as
// transient.
func DefaultClassifier(err error) bool {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
