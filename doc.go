// Package frameobserver delivers pipeline frame events to observers without
// blocking the pipeline, and manages the background tasks that do the delivery.
//
// # Quick Start
//
// Create a task manager and a fanout over your observers:
//
//	mgr := frameobserver.NewTaskManager(nil)
//	fanout := frameobserver.NewFanout(mgr, metricsObserver, debugObserver)
//	defer fanout.Stop(context.Background())
//
// Hand the fanout to the pipeline; it is itself an Observer:
//
//	fanout.Push(ctx, src, dst, frame, frameobserver.Downstream, ts)
//
// # Key Concepts
//
// TaskManager: starts work on its own goroutine (Create), and waits for it
// (Wait) or cancels it (Cancel) with an optional timeout. Failures and panics
// are logged and recorded in the task's Outcome; they are never returned to
// the caller.
//
// Fanout: gives every observer its own unbounded queue and its own task.
// Push only appends to the queues, so a slow observer never slows the
// pipeline. Each observer sees events in push order.
//
// # Failure Behavior
//
// An observer that returns an error or panics stops receiving events for the
// rest of the fanout's life. There is no restart. Other observers are not
// affected.
//
// A Wait or Cancel that times out still removes the task from the manager's
// registry, even though the task may keep running.
//
// For more details, see https://github.com/Swind/go-frame-observer
package frameobserver
