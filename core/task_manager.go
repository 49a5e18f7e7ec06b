package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// TaskManager starts, waits on and cancels background tasks.
//
// None of its methods return errors or let a task failure escape: a task that
// returns an error or panics is logged, recorded as StatusFailed and absorbed.
// That makes the manager safe to drive from shutdown paths, at the cost of
// failures only being visible through outcomes, logs and metrics.
//
// Every live task is tracked in the manager's TaskRegistry. A task leaves the
// registry when it finishes on its own, and Wait/Cancel always release the
// handle on return, including when they time out while the task is still
// running.
type TaskManager struct {
	name         string
	registry     *TaskRegistry
	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics
	history      *executionHistory

	seq atomic.Uint64

	created        atomic.Int64
	succeeded      atomic.Int64
	cancelled      atomic.Int64
	failed         atomic.Int64
	waitTimeouts   atomic.Int64
	doubleReleases atomic.Int64
}

// NewTaskManager creates a TaskManager. A nil config uses DefaultTaskManagerConfig.
func NewTaskManager(config *TaskManagerConfig) *TaskManager {
	if config == nil {
		config = DefaultTaskManagerConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	panicHandler := config.PanicHandler
	if panicHandler == nil {
		panicHandler = &LoggingPanicHandler{Logger: logger}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	name := config.Name
	if name == "" {
		name = fmt.Sprintf("TaskManager#%d", ObjectCount("TaskManager"))
	}

	return &TaskManager{
		name:         name,
		registry:     NewTaskRegistry(),
		logger:       logger,
		panicHandler: panicHandler,
		metrics:      metrics,
		history:      newExecutionHistory(config.HistoryCapacity),
	}
}

func (m *TaskManager) Name() string { return m.name }

// Logger returns the logger the manager reports through.
func (m *TaskManager) Logger() Logger { return m.logger }

// Metrics returns the metrics sink the manager records to.
func (m *TaskManager) Metrics() Metrics { return m.metrics }

// Registry exposes the live-task registry.
func (m *TaskManager) Registry() *TaskRegistry { return m.registry }

// Tasks returns the live handles in creation order.
func (m *TaskManager) Tasks() []*TaskHandle { return m.registry.Snapshot() }

// Create starts work on its own goroutine and returns immediately.
// The handle is in the registry before the goroutine starts.
func (m *TaskManager) Create(work TaskFunc, name string) *TaskHandle {
	h := newTaskHandle(resolveTaskName(work, name), m.seq.Add(1))
	m.registry.Insert(h)
	m.created.Add(1)

	go m.run(h, work)

	m.logger.Debug(h.name+": task created", F("task", h.name), F("task_id", h.id.String()))
	return h
}

func (m *TaskManager) run(h *TaskHandle, work TaskFunc) {
	defer close(h.done)
	defer h.cancel()

	outcome, panicked := m.execute(h, work)
	h.setOutcome(outcome)

	finishedAt := time.Now()
	m.history.Add(TaskExecutionRecord{
		TaskID:      h.id,
		Name:        h.name,
		ManagerName: m.name,
		Status:      outcome.Status,
		Err:         errString(outcome.Err),
		StartedAt:   h.startedAt,
		FinishedAt:  finishedAt,
		Duration:    finishedAt.Sub(h.startedAt),
		Panicked:    panicked,
	})
	m.metrics.RecordTaskDuration(h.name, outcome.Status, finishedAt.Sub(h.startedAt))

	switch outcome.Status {
	case StatusOK:
		m.succeeded.Add(1)
	case StatusCancelled:
		m.cancelled.Add(1)
		m.logger.Debug(h.name+": cancelling task", F("task", h.name))
	case StatusFailed:
		m.failed.Add(1)
		m.metrics.RecordTaskFailure(h.name, outcome.Err)
		if !panicked {
			m.logger.Error(h.name+": unexpected error", F("task", h.name), F("error", outcome.Err))
		}
	}

	if !m.registry.Remove(h) {
		// A timed-out Wait or Cancel released the handle while it was still running.
		m.logger.Debug(h.name+": task finished after it was released", F("task", h.name), F("status", outcome.Status.String()))
	}
}

func (m *TaskManager) execute(h *TaskHandle, work TaskFunc) (outcome Outcome, panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			m.panicHandler.HandlePanic(h.ctx, h.name, rec, stack)
			outcome = Outcome{Status: StatusFailed, Err: &PanicError{Value: rec, Stack: stack}}
			panicked = true
		}
	}()

	if work == nil {
		panic(fmt.Sprintf("task %s has no work function", h.name))
	}

	err := work(h.ctx)
	switch {
	case err == nil:
		return Outcome{Status: StatusOK}, false
	case errors.Is(err, context.Canceled) && h.ctx.Err() != nil:
		return Outcome{Status: StatusCancelled}, false
	default:
		return Outcome{Status: StatusFailed, Err: err}, false
	}
}

type awaitResult int

const (
	awaitDone awaitResult = iota
	awaitTimeout
	awaitInterrupted
)

// await blocks until h is done, timeout elapses (0 = no timeout) or ctx is done.
func (m *TaskManager) await(ctx context.Context, h *TaskHandle, timeout time.Duration) awaitResult {
	if ctx == nil {
		ctx = context.Background()
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.done:
		return awaitDone
	case <-expired:
		return awaitTimeout
	case <-ctx.Done():
		return awaitInterrupted
	}
}

// Wait blocks until h finishes or timeout elapses (0 means wait forever).
//
// On timeout a warning is logged and the returned Outcome still reports
// StatusRunning. The handle is released from the registry on every path,
// even when the task is still running after a timeout.
func (m *TaskManager) Wait(ctx context.Context, h *TaskHandle, timeout time.Duration) Outcome {
	if h == nil {
		m.logger.Error("wait called with nil task handle")
		return Outcome{}
	}
	defer m.release(h, "wait")

	switch m.await(ctx, h, timeout) {
	case awaitTimeout:
		m.waitTimeouts.Add(1)
		m.logger.Warn(h.name+": timed out waiting for task to finish", F("task", h.name), F("timeout", timeout))
	case awaitInterrupted:
		m.logger.Error(h.name+": unexpected cancellation while waiting for task", F("task", h.name))
	case awaitDone:
		out := h.Outcome()
		switch out.Status {
		case StatusCancelled:
			m.logger.Error(h.name+": unexpected cancellation while waiting for task", F("task", h.name))
		case StatusFailed:
			m.logger.Debug(h.name+": waited task failed", F("task", h.name), F("error", out.Err))
		}
	}
	return h.Outcome()
}

// Cancel signals cancellation to h and then waits like Wait. A cancelled
// outcome is the expected result and is only logged at debug level.
func (m *TaskManager) Cancel(ctx context.Context, h *TaskHandle, timeout time.Duration) Outcome {
	if h == nil {
		m.logger.Error("cancel called with nil task handle")
		return Outcome{}
	}
	defer m.release(h, "cancel")

	h.cancel()

	switch m.await(ctx, h, timeout) {
	case awaitTimeout:
		m.waitTimeouts.Add(1)
		m.logger.Warn(h.name+": timed out waiting for task to finish", F("task", h.name), F("timeout", timeout))
	case awaitInterrupted:
		m.logger.Error(h.name+": unexpected cancellation while cancelling task", F("task", h.name))
	case awaitDone:
		out := h.Outcome()
		switch out.Status {
		case StatusCancelled:
			m.logger.Debug(h.name+": task cancelled", F("task", h.name))
		case StatusFailed:
			m.logger.Debug(h.name+": cancelled task had failed", F("task", h.name), F("error", out.Err))
		}
	}
	return h.Outcome()
}

// Shutdown cancels every live task, oldest first, each bounded by timeout.
func (m *TaskManager) Shutdown(ctx context.Context, timeout time.Duration) {
	for _, h := range m.registry.Snapshot() {
		m.Cancel(ctx, h, timeout)
	}
}

// release removes h from the registry on behalf of Wait or Cancel. A handle
// is released at most once; later releases are logged as errors.
func (m *TaskManager) release(h *TaskHandle, op string) {
	if !h.released.CompareAndSwap(false, true) {
		m.doubleReleases.Add(1)
		m.logger.Error(h.name+": task already removed", F("task", h.name), F("op", op))
		return
	}
	m.registry.Remove(h)
}

// RecentTasks returns up to limit finished task records, newest first.
func (m *TaskManager) RecentTasks(limit int) []TaskExecutionRecord {
	return m.history.Recent(limit)
}

// LastTask returns the most recently finished task record.
func (m *TaskManager) LastTask() (TaskExecutionRecord, bool) {
	return m.history.Last()
}

func (m *TaskManager) Stats() ManagerStats {
	stats := ManagerStats{
		Name:           m.name,
		Live:           m.registry.Len(),
		Created:        m.created.Load(),
		Succeeded:      m.succeeded.Load(),
		Cancelled:      m.cancelled.Load(),
		Failed:         m.failed.Load(),
		WaitTimeouts:   m.waitTimeouts.Load(),
		DoubleReleases: m.doubleReleases.Load(),
	}
	if last, ok := m.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
