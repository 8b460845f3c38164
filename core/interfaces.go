package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution on a pool worker.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (carries the WorkerRef)
	// - poolID: The ID of the pool whose worker ran the task
	// - workerID: The logical thread index of the worker
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolID string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s", workerID, poolID, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting pool and bootstrap metrics.
// Implementations can send metrics to monitoring systems (see observability/prometheus).
//
// Methods should be non-blocking and fast to avoid impacting task execution performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(poolID string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolID string, panicInfo any)

	// RecordTaskStolen records that a worker took a task from a peer's deque.
	RecordTaskStolen(poolID string)

	// RecordTaskRejected records that a task was rejected (e.g., after Stop).
	RecordTaskRejected(poolID string, reason string)

	// RecordQueueDepth records the current depth of the global injector queue.
	RecordQueueDepth(poolID string, depth int)

	// RecordThreadsDeclared records a successful thread declaration of n threads.
	RecordThreadsDeclared(poolID string, n int)

	// RecordEntryTaskDelivered records one entry task handed to a waiting worker.
	RecordEntryTaskDelivered(poolID string)

	// RecordAttach records how long a worker waited for its entry task.
	RecordAttach(poolID string, wait time.Duration)

	// RecordBootstrapFailure records a failed bootstrap in the given phase.
	RecordBootstrapFailure(poolID string, phase Phase)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(poolID string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(poolID string, panicInfo any)             {}
func (m *NilMetrics) RecordTaskStolen(poolID string)                           {}
func (m *NilMetrics) RecordTaskRejected(poolID string, reason string)          {}
func (m *NilMetrics) RecordQueueDepth(poolID string, depth int)                {}
func (m *NilMetrics) RecordThreadsDeclared(poolID string, n int)               {}
func (m *NilMetrics) RecordEntryTaskDelivered(poolID string)                   {}
func (m *NilMetrics) RecordAttach(poolID string, wait time.Duration)           {}
func (m *NilMetrics) RecordBootstrapFailure(poolID string, phase Phase)        {}

// =============================================================================
// PoolConfig: Configuration for pools and builders
// =============================================================================

// PoolConfig holds configuration options shared by the scheduler and the builder.
// All handlers are optional; if not provided, default implementations will be used.
type PoolConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger receives lifecycle logs. Defaults to NoOpLogger.
	Logger Logger
}

// DefaultPoolConfig returns a config with default handlers.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		PanicHandler: &DefaultPanicHandler{},
		Metrics:      &NilMetrics{},
		Logger:       NewNoOpLogger(),
	}
}

// WithDefaults returns a copy of c where every nil handler is replaced by its default.
// A nil config yields DefaultPoolConfig.
func (c *PoolConfig) WithDefaults() *PoolConfig {
	out := DefaultPoolConfig()
	if c == nil {
		return out
	}
	if c.PanicHandler != nil {
		out.PanicHandler = c.PanicHandler
	}
	if c.Metrics != nil {
		out.Metrics = c.Metrics
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	return out
}
