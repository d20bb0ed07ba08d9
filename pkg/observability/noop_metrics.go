package observability

import "time"

// noOpMetricsClient is a no-op implementation of MetricsClient for testing
type noOpMetricsClient struct{}

// NewNoOpMetricsClient creates a new no-op metrics client that does nothing
func NewNoOpMetricsClient() MetricsClient {
	return &noOpMetricsClient{}
}

// RecordCounter is a no-op implementation
func (n *noOpMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {}

// RecordGauge is a no-op implementation
func (n *noOpMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {}

// RecordLatency is a no-op implementation
func (n *noOpMetricsClient) RecordLatency(operation string, duration time.Duration) {}

// RecordOperation is a no-op implementation
func (n *noOpMetricsClient) RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string) {
}

// IncrementCounter is a no-op implementation
func (n *noOpMetricsClient) IncrementCounter(name string, value float64) {}

// Close is a no-op implementation
func (n *noOpMetricsClient) Close() error {
	return nil
}
