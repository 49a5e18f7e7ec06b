package frameobserver

import (
	"github.com/Swind/go-frame-observer/core"
	"github.com/Swind/go-frame-observer/observer"
)

// Re-export commonly used types from core and observer for convenience.
// This allows users to import only the frameobserver package for most use cases.

// TaskFunc is the unit of background work
type TaskFunc = core.TaskFunc

// TaskManager starts, waits on and cancels background tasks
type TaskManager = core.TaskManager

// TaskManagerConfig configures a TaskManager
type TaskManagerConfig = core.TaskManagerConfig

// TaskHandle is one running or finished task
type TaskHandle = core.TaskHandle

// Outcome is the completion result of a task
type Outcome = core.Outcome

// TaskStatus is the state carried by an Outcome
type TaskStatus = core.TaskStatus

// Task status constants
const (
	StatusRunning   = core.StatusRunning
	StatusOK        = core.StatusOK
	StatusCancelled = core.StatusCancelled
	StatusFailed    = core.StatusFailed
)

// Event records one frame transition
type Event = observer.Event

// Observer consumes events
type Observer = observer.Observer

// ObserverFunc adapts a function to Observer
type ObserverFunc = observer.ObserverFunc

// Pipeline side of an Event
type (
	Processor = observer.Processor
	Frame     = observer.Frame
	Direction = observer.Direction
)

// Direction constants
const (
	Downstream = observer.Downstream
	Upstream   = observer.Upstream
)

// Fanout delivers events to observers without blocking the pipeline
type Fanout = observer.Fanout

// NewTaskManager creates a TaskManager; a nil config uses defaults.
func NewTaskManager(config *TaskManagerConfig) *TaskManager {
	return core.NewTaskManager(config)
}

// NewFanout starts one delivery task per observer on mgr.
func NewFanout(mgr *TaskManager, observers ...Observer) *Fanout {
	return observer.NewFanout(mgr, observers)
}
