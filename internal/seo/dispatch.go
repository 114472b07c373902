package seo

import "context"

// Task is a unit of deferred work.
type Task func(ctx context.Context) error

// Dispatcher runs tasks outside the caller's critical path where possible.
// Implementations must never block the caller on a full queue; they fall
// back to running the task inline instead.
type Dispatcher interface {
	Dispatch(name string, task Task)
}

// SyncDispatcher runs every task immediately. Errors are reported to the logger.
type SyncDispatcher struct {
	Logger Logger
}

func (d SyncDispatcher) Dispatch(name string, task Task) {
	if err := task(context.Background()); err != nil && d.Logger != nil {
		d.Logger.Warn("task failed", "task", name, "error", err)
	}
}
