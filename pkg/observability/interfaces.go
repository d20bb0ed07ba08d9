// Package observability provides the logging and metrics interfaces shared
// across the storage subsystem, with standard and no-op implementations.
package observability

import "time"

// LoggingConfig holds the configuration for logging
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level,omitempty"`
	Format string `mapstructure:"format" json:"format,omitempty"`
}

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// WithPrefix returns a logger scoped to a component name
	WithPrefix(prefix string) Logger

	// With returns a logger that attaches fields to every message
	With(fields map[string]interface{}) Logger
}

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordLatency(operation string, duration time.Duration)
	RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string)
	IncrementCounter(name string, value float64)
	Close() error
}
