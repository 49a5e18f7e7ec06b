package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TaskFunc is the unit of background work.
// It must return once ctx is cancelled; returning ctx.Err() marks the task cancelled.
type TaskFunc func(ctx context.Context) error

// TaskID identifies one task handle.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id TaskID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// =============================================================================
// TaskStatus / Outcome
// =============================================================================

type TaskStatus int

const (
	// StatusRunning: the task has not finished yet
	StatusRunning TaskStatus = iota

	// StatusOK: the work returned nil
	StatusOK

	// StatusCancelled: the work observed cancellation and unwound
	StatusCancelled

	// StatusFailed: the work returned an error or panicked
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusOK:
		return "ok"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
}

func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Done reports whether the status is terminal.
func (s TaskStatus) Done() bool {
	return s != StatusRunning
}

// Outcome is the observable completion result of a task.
// Err is only set when Status is StatusFailed.
type Outcome struct {
	Status TaskStatus
	Err    error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s(%v)", o.Status, o.Err)
	}
	return o.Status.String()
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// PanicError carries a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
