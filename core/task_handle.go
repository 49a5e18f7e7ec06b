package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TaskHandle is a named unit of background work started by a TaskManager.
type TaskHandle struct {
	id        TaskID
	seq       uint64
	name      string
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome

	// set once Wait or Cancel has taken the handle out of the registry
	released atomic.Bool
}

func newTaskHandle(name string, seq uint64) *TaskHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskHandle{
		id:        GenerateTaskID(),
		seq:       seq,
		name:      name,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (h *TaskHandle) ID() TaskID           { return h.id }
func (h *TaskHandle) Name() string         { return h.name }
func (h *TaskHandle) StartedAt() time.Time { return h.startedAt }
func (h *TaskHandle) String() string       { return h.name }

// Done is closed once the task has fully unwound and its outcome is final.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// IsDone reports whether the task has finished.
func (h *TaskHandle) IsDone() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Outcome returns the task result; Status is StatusRunning until the task finishes.
func (h *TaskHandle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Stats returns a point-in-time view of the handle.
func (h *TaskHandle) Stats() TaskStats {
	return TaskStats{
		ID:        h.id,
		Name:      h.name,
		Status:    h.Outcome().Status,
		StartedAt: h.startedAt,
		Age:       time.Since(h.startedAt),
	}
}

func (h *TaskHandle) setOutcome(o Outcome) {
	h.mu.Lock()
	h.outcome = o
	h.mu.Unlock()
}
