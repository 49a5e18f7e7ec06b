package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// The panic has already been converted into a StatusFailed outcome; the handler
// only decides how the panic is reported.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the task was running with
	// - taskName: The name of the task that panicked
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, taskName string, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler reports panics through a Logger.
type LoggingPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic value and stack at error level.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, taskName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error(taskName+": task panicked",
		F("task", taskName),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting task and fan-out metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called on hot paths (Push and task completion) and must not block.
type Metrics interface {
	// RecordTaskDuration records how long a task lived and how it ended.
	RecordTaskDuration(taskName string, status TaskStatus, duration time.Duration)

	// RecordTaskFailure records that a task returned an error or panicked.
	RecordTaskFailure(taskName string, reason error)

	// RecordQueueDepth records the current depth of a named delivery queue.
	RecordQueueDepth(queueName string, depth int)

	// RecordEventDropped records an event that was not enqueued (e.g. after stop).
	RecordEventDropped(queueName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(taskName string, status TaskStatus, duration time.Duration) {
}

// RecordTaskFailure is a no-op.
func (m *NilMetrics) RecordTaskFailure(taskName string, reason error) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int) {
}

// RecordEventDropped is a no-op.
func (m *NilMetrics) RecordEventDropped(queueName string, reason string) {
}

// =============================================================================
// TaskManagerConfig: Configuration for TaskManager
// =============================================================================

// TaskManagerConfig holds configuration options for TaskManager.
// All fields are optional; zero values are replaced with defaults.
type TaskManagerConfig struct {
	// Name labels the manager in logs and stats. Defaults to "TaskManager#N".
	Name string

	// Logger receives all lifecycle logs. Defaults to NewDefaultLogger().
	Logger Logger

	// PanicHandler reports panics. Defaults to a LoggingPanicHandler on Logger.
	PanicHandler PanicHandler

	// Metrics records task metrics. Defaults to NilMetrics.
	Metrics Metrics

	// HistoryCapacity bounds the finished-task history ring. Defaults to 100.
	HistoryCapacity int
}

// DefaultTaskManagerConfig returns a config with default handlers.
func DefaultTaskManagerConfig() *TaskManagerConfig {
	logger := NewDefaultLogger()
	return &TaskManagerConfig{
		Logger:          logger,
		PanicHandler:    &LoggingPanicHandler{Logger: logger},
		Metrics:         &NilMetrics{},
		HistoryCapacity: defaultTaskHistoryCapacity,
	}
}
