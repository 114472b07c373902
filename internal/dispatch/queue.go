// Package dispatch runs deferred work, such as hit counting, on a small
// pool of background workers so request handlers return immediately.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"almaseo-go/internal/seo"
)

// taskTimeout bounds a single background task.
const taskTimeout = 30 * time.Second

type job struct {
	name string
	task seo.Task
}

// Queue is a bounded worker pool implementing seo.Dispatcher.
// A full or closed queue runs the task inline on the caller's goroutine.
type Queue struct {
	workers int
	logger  seo.Logger

	mu     sync.RWMutex
	jobs   chan job
	closed bool
	wg     sync.WaitGroup
}

var _ seo.Dispatcher = (*Queue)(nil)

// NewQueue creates a queue buffering up to size tasks for the given number
// of workers. Call Start before dispatching and Close on shutdown.
func NewQueue(size, workers int, logger seo.Logger) *Queue {
	if size < 0 {
		size = 0
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		workers: workers,
		logger:  seo.WithComponent(logger, "dispatch"),
		jobs:    make(chan job, size),
	}
}

// Start launches the workers.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

// Dispatch enqueues the task without blocking.
func (q *Queue) Dispatch(name string, task seo.Task) {
	q.mu.RLock()
	if !q.closed {
		select {
		case q.jobs <- job{name: name, task: task}:
			q.mu.RUnlock()
			return
		default:
		}
	}
	q.mu.RUnlock()

	q.logger.Debug("running task inline", "task", name)
	q.run(job{name: name, task: task})
}

func (q *Queue) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked", "task", j.name, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	if err := j.task(ctx); err != nil {
		q.logger.Warn("task failed", "task", j.name, "error", err)
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Close stops accepting tasks and waits for queued ones to finish, or for
// ctx to be done. Tasks dispatched after Close run inline.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d queued tasks: %w", q.Pending(), ctx.Err())
	}
}
