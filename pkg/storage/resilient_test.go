package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/models"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/observability"
	"github.com/raafayk7/DocumentManagementSystem-sub001/pkg/resilience"
)

// flakyBackend is a Provider stub whose upload behavior is scripted per
// raw call, so tests can count exactly how often the backend is reached
type flakyBackend struct {
	mu       sync.Mutex
	rawCalls int
	fail     func(call int) error
}

func (f *flakyBackend) nextErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawCalls++
	if f.fail == nil {
		return nil
	}
	return f.fail(f.rawCalls)
}

func (f *flakyBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rawCalls
}

func (f *flakyBackend) Upload(ctx context.Context, data []byte, filename string, mimeType string) (*models.FileInfo, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &models.FileInfo{Name: filename, Size: int64(len(data)), MimeType: mimeType}, nil
}

func (f *flakyBackend) Download(ctx context.Context, filename string) ([]byte, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []byte("content"), nil
}

func (f *flakyBackend) Delete(ctx context.Context, filename string) error {
	return f.nextErr()
}

func (f *flakyBackend) Exists(ctx context.Context, filename string) (bool, error) {
	if err := f.nextErr(); err != nil {
		return false, err
	}
	return true, nil
}

func (f *flakyBackend) ListFiles(ctx context.Context) ([]models.FileInfo, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return []models.FileInfo{{Name: "a.txt"}}, nil
}

func (f *flakyBackend) GetFileInfo(ctx context.Context, filename string) (*models.FileInfo, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &models.FileInfo{Name: filename}, nil
}

func (f *flakyBackend) GetStorageConfig(ctx context.Context) (*models.StorageConfig, error) {
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &models.StorageConfig{Provider: "flaky"}, nil
}

func (f *flakyBackend) HealthCheck(ctx context.Context) (bool, error) {
	if err := f.nextErr(); err != nil {
		return false, err
	}
	return true, nil
}

// testResilienceConfig keeps delays small enough for unit tests
func testResilienceConfig() ResilienceConfig {
	cfg := DefaultResilienceConfig()
	cfg.BackoffStrategy = resilience.BackoffFixed
	cfg.Retry.Name = "test"
	cfg.Retry.BaseDelay = 100 * time.Millisecond
	cfg.Retry.MaxDelay = time.Second
	cfg.Retry.JitterEnabled = false
	cfg.Retry.AttemptTimeout = time.Second
	cfg.Retry.TotalTimeout = 30 * time.Second
	cfg.CircuitBreaker.OpenTimeout = 100 * time.Millisecond
	return cfg
}

func newWrapped(t *testing.T, backend Provider, cfg ResilienceConfig) *ResilientStorage {
	t.Helper()
	rs, err := NewResilientStorage(backend, cfg, observability.NewNoopLogger(), nil)
	require.NoError(t, err)
	return rs
}

func TestResilientStorage_PassThroughOnSuccess(t *testing.T) {
	backend := &flakyBackend{}
	rs := newWrapped(t, backend, testResilienceConfig())
	ctx := context.Background()

	info, err := rs.Upload(ctx, []byte("doc"), "doc.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", info.Name)

	data, err := rs.Download(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)

	exists, err := rs.Exists(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	files, err := rs.ListFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	fi, err := rs.GetFileInfo(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", fi.Name)

	sc, err := rs.GetStorageConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "flaky", sc.Provider)

	healthy, err := rs.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, healthy)

	require.NoError(t, rs.Delete(ctx, "doc.pdf"))
	assert.Equal(t, 8, backend.calls())
}

func TestResilientStorage_RetriesTransientFailures(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		if call < 3 {
			return resilience.Transient(errors.New("blip"))
		}
		return nil
	}}
	rs := newWrapped(t, backend, testResilienceConfig())

	info, err := rs.Upload(context.Background(), []byte("doc"), "doc.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", info.Name)
	assert.Equal(t, 3, backend.calls())
	assert.Equal(t, resilience.StateClosed, rs.CircuitBreakerState())
}

func TestResilientStorage_FatalFailsWithoutRetry(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		return resilience.Fatal(errors.New("permission denied"))
	}}
	rs := newWrapped(t, backend, testResilienceConfig())

	_, err := rs.Upload(context.Background(), []byte("doc"), "doc.pdf", "application/pdf")
	assert.Error(t, err)
	assert.Equal(t, 1, backend.calls())
}

func TestResilientStorage_BreakerCountsLogicalFailures(t *testing.T) {
	// Retry exhausts 3 raw attempts per logical upload; the breaker trips
	// after 5 logical failures, i.e. 15 raw calls, and the 6th upload is
	// rejected without reaching the backend at all.
	backend := &flakyBackend{fail: func(call int) error {
		return resilience.Transient(errors.New("backend down"))
	}}

	cfg := testResilienceConfig()
	cfg.Retry.BaseDelay = 100 * time.Millisecond
	cfg.Retry.MaxAttempts = 3
	cfg.CircuitBreaker.FailureThreshold = 5
	cfg.CircuitBreaker.OpenTimeout = time.Hour
	rs := newWrapped(t, backend, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := rs.Upload(ctx, []byte("doc"), "doc.pdf", "application/pdf")
		assert.ErrorIs(t, err, resilience.ErrRetryExhausted)
	}
	assert.Equal(t, 15, backend.calls())
	assert.Equal(t, resilience.StateOpen, rs.CircuitBreakerState())

	_, err := rs.Upload(ctx, []byte("doc"), "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 15, backend.calls())
}

func TestResilientStorage_RecoversThroughProbe(t *testing.T) {
	failing := true
	backend := &flakyBackend{fail: func(call int) error {
		if failing {
			return resilience.Transient(errors.New("backend down"))
		}
		return nil
	}}

	cfg := testResilienceConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.FailureThreshold = 2
	cfg.CircuitBreaker.SuccessThreshold = 1
	cfg.CircuitBreaker.OpenTimeout = 50 * time.Millisecond
	rs := newWrapped(t, backend, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = rs.Download(ctx, "doc.pdf")
	}
	assert.Equal(t, resilience.StateOpen, rs.CircuitBreakerState())

	failing = false
	time.Sleep(80 * time.Millisecond)

	data, err := rs.Download(ctx, "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)
	assert.Equal(t, resilience.StateClosed, rs.CircuitBreakerState())
	assert.Equal(t, 0, rs.CircuitBreakerMetrics().FailureCount)
}

// staleReadBackend answers the first raw download long after the attempt
// deadline, ignoring its context, to simulate a hung backend call
type staleReadBackend struct {
	flakyBackend
	reads    atomic.Int32
	finished chan struct{}
}

func (b *staleReadBackend) Download(ctx context.Context, filename string) ([]byte, error) {
	if b.reads.Add(1) == 1 {
		time.Sleep(300 * time.Millisecond)
		defer close(b.finished)
		return []byte("stale"), nil
	}
	return []byte("fresh"), nil
}

func TestResilientStorage_AbandonedAttemptCannotOverwriteResult(t *testing.T) {
	backend := &staleReadBackend{finished: make(chan struct{})}

	cfg := testResilienceConfig()
	cfg.Retry.AttemptTimeout = 100 * time.Millisecond
	rs := newWrapped(t, backend, cfg)

	data, err := rs.Download(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), data)
	assert.Equal(t, int32(2), backend.reads.Load())

	// The hung first attempt finishing late must not touch the result
	<-backend.finished
	assert.Equal(t, []byte("fresh"), data)
}

func TestResilientStorage_RetryDisabled(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		return resilience.Transient(errors.New("blip"))
	}}

	cfg := testResilienceConfig()
	cfg.EnableRetry = false
	rs := newWrapped(t, backend, cfg)

	_, err := rs.Download(context.Background(), "doc.pdf")
	assert.Error(t, err)
	assert.Equal(t, 1, backend.calls())
}

func TestResilientStorage_CircuitBreakerDisabled(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		return resilience.Transient(errors.New("backend down"))
	}}

	cfg := testResilienceConfig()
	cfg.EnableCircuitBreaker = false
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.FailureThreshold = 1
	rs := newWrapped(t, backend, cfg)
	ctx := context.Background()

	// Without the breaker, failures never lead to rejection
	for i := 0; i < 5; i++ {
		_, err := rs.Download(ctx, "doc.pdf")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	assert.Equal(t, 5, backend.calls())
}

func TestResilientStorage_ResetCircuitBreaker(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		if call <= 1 {
			return resilience.Transient(errors.New("backend down"))
		}
		return nil
	}}

	cfg := testResilienceConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.FailureThreshold = 1
	cfg.CircuitBreaker.OpenTimeout = time.Hour
	rs := newWrapped(t, backend, cfg)
	ctx := context.Background()

	_, _ = rs.Download(ctx, "doc.pdf")
	assert.Equal(t, resilience.StateOpen, rs.CircuitBreakerState())

	rs.ResetCircuitBreaker()
	assert.Equal(t, resilience.StateClosed, rs.CircuitBreakerState())

	_, err := rs.Download(ctx, "doc.pdf")
	assert.NoError(t, err)
}

func TestResilientStorage_OnRetryHook(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		if call < 2 {
			return resilience.Transient(errors.New("blip"))
		}
		return nil
	}}

	rs := newWrapped(t, backend, testResilienceConfig())

	var retries []time.Duration
	rs.OnRetry(func(attempt int, err error, delay time.Duration) {
		retries = append(retries, delay)
	})

	_, err := rs.Download(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, retries)
}

func TestResilientStorage_OnStateChangeHook(t *testing.T) {
	backend := &flakyBackend{fail: func(call int) error {
		return resilience.Transient(errors.New("backend down"))
	}}

	cfg := testResilienceConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker.FailureThreshold = 1
	cfg.CircuitBreaker.OpenTimeout = time.Hour
	rs := newWrapped(t, backend, cfg)

	var opened bool
	rs.OnStateChange(func(name string, from, to resilience.CircuitBreakerState) {
		if to == resilience.StateOpen {
			opened = true
		}
	})

	_, _ = rs.Download(context.Background(), "doc.pdf")
	assert.True(t, opened)
}

func TestResilientStorage_UnknownBackoffStrategy(t *testing.T) {
	cfg := testResilienceConfig()
	cfg.BackoffStrategy = "quadratic"

	_, err := NewResilientStorage(&flakyBackend{}, cfg, observability.NewNoopLogger(), nil)
	assert.Error(t, err)
}

func TestResilientStorage_NilBackend(t *testing.T) {
	_, err := NewResilientStorage(nil, testResilienceConfig(), observability.NewNoopLogger(), nil)
	assert.Error(t, err)
}

func TestResilientStorage_WrapsMemoryStorageEndToEnd(t *testing.T) {
	rs := newWrapped(t, NewMemoryStorage(), testResilienceConfig())
	ctx := context.Background()

	info, err := rs.Upload(ctx, []byte("hello"), "hello.txt", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)

	data, err := rs.Download(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// A missing file is a fatal error: one attempt, breaker stays closed
	_, err = rs.Download(ctx, "missing.txt")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, resilience.ErrRetryExhausted)
	assert.Equal(t, resilience.StateClosed, rs.CircuitBreakerState())
}
