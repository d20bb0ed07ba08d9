package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/observability"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and calls flow normally
	StateClosed CircuitBreakerState = iota

	// StateOpen means the circuit is open and calls are rejected
	StateOpen

	// StateHalfOpen means the circuit is probing whether the backend recovered
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerMetrics is a read-only snapshot of breaker state
type CircuitBreakerMetrics struct {
	State             CircuitBreakerState `json:"state"`
	FailureCount      int                 `json:"failure_count"`
	ProbeSuccesses    int                 `json:"probe_successes"`
	LastFailureAt     time.Time           `json:"last_failure_at"`
	LastStateChangeAt time.Time           `json:"last_state_change_at"`
}

// StateChangeFunc is notified after a state transition
type StateChangeFunc func(name string, from, to CircuitBreakerState)

// CircuitBreaker gates calls to a single backend. In Closed state every
// call goes through and consecutive failures are counted; once the failure
// threshold is reached the breaker opens and rejects calls outright. After
// the open timeout a single probe call is admitted; while that probe is in
// flight every other caller is rejected as if the breaker were still open.
// Enough consecutive probe successes close the breaker, one probe failure
// reopens it and restarts the clock.
//
// The breaker never inspects error content. It only observes whether the
// composed call succeeded, so wrapping a retrying operation makes it count
// logical failures, not raw attempts.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	state             CircuitBreakerState
	failureCount      int
	probeSuccesses    int
	probeInFlight     bool
	lastFailureAt     time.Time
	lastStateChangeAt time.Time

	onStateChange StateChangeFunc
	logger        observability.Logger
	metrics       observability.MetricsClient

	mu sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker for the named backend
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger observability.Logger, metrics observability.MetricsClient) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}

	return &CircuitBreaker{
		name:              name,
		config:            config,
		state:             StateClosed,
		lastStateChangeAt: time.Now(),
		logger:            logger.WithPrefix("circuit-breaker").With(map[string]interface{}{"breaker": name}),
		metrics:           metrics,
	}, nil
}

// OnStateChange registers a hook invoked after every state transition.
// Must be called before the breaker is shared across goroutines.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.onStateChange = fn
}

// Execute runs fn if the breaker admits the call, then records the outcome.
// Rejected calls return a circuit-open error, matching ErrCircuitOpen,
// without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, ok := cb.allow()
	if !ok {
		cb.metrics.IncrementCounter("circuit_breaker_rejected_total", 1)
		return CircuitOpen()
	}

	err := fn()
	cb.record(err == nil, probe)

	return err
}

// allow decides whether a call may proceed. The second return reports
// whether the admitted call is a half-open probe.
func (cb *CircuitBreaker) allow() (probe bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true

	case StateOpen:
		if time.Since(cb.lastStateChangeAt) >= cb.config.OpenTimeout {
			cb.setState(StateHalfOpen)
			cb.probeInFlight = true
			cb.probeSuccesses = 0
			return true, true
		}
		return false, false

	case StateHalfOpen:
		if cb.probeInFlight {
			return false, false
		}
		cb.probeInFlight = true
		return true, true

	default:
		return false, false
	}
}

// record updates breaker state after a call completed
func (cb *CircuitBreaker) record(success bool, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		// The breaker may have been force-reset while the probe was out;
		// in that case the probe result is counted as a regular call.
		if cb.state == StateHalfOpen {
			cb.recordProbe(success)
			return
		}
		cb.probeInFlight = false
	}

	if cb.state != StateClosed {
		return
	}

	if success {
		cb.failureCount = 0
		return
	}

	cb.failureCount++
	cb.lastFailureAt = time.Now()
	if cb.failureCount >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
		cb.logger.Warn("circuit breaker opened", map[string]interface{}{
			"failures":  cb.failureCount,
			"threshold": cb.config.FailureThreshold,
		})
	}
}

// recordProbe handles the outcome of a half-open probe
func (cb *CircuitBreaker) recordProbe(success bool) {
	cb.probeInFlight = false

	if !success {
		cb.failureCount++
		cb.lastFailureAt = time.Now()
		cb.probeSuccesses = 0
		cb.setState(StateOpen)
		cb.logger.Warn("circuit breaker re-opened after failed probe", nil)
		return
	}

	cb.probeSuccesses++
	if cb.probeSuccesses >= cb.config.SuccessThreshold {
		cb.failureCount = 0
		cb.probeSuccesses = 0
		cb.setState(StateClosed)
		cb.logger.Info("circuit breaker closed after successful recovery", nil)
	}
}

// setState transitions the breaker and fires hooks. Caller holds the mutex.
func (cb *CircuitBreaker) setState(state CircuitBreakerState) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state
	cb.lastStateChangeAt = time.Now()

	cb.metrics.RecordCounter("circuit_breaker_transitions_total", 1, map[string]string{
		"breaker": cb.name,
		"from":    from.String(),
		"to":      state.String(),
	})
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, state)
	}
}

// State returns the current circuit breaker state
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a snapshot of the breaker's counters and timestamps
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:             cb.state,
		FailureCount:      cb.failureCount,
		ProbeSuccesses:    cb.probeSuccesses,
		LastFailureAt:     cb.lastFailureAt,
		LastStateChangeAt: cb.lastStateChangeAt,
	}
}

// Reset forces the breaker back to Closed and clears all counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.probeSuccesses = 0
	cb.probeInFlight = false
	cb.setState(StateClosed)
	cb.logger.Info("circuit breaker reset", nil)
}
