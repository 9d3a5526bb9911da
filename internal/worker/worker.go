// Package worker runs long operations (batch classification, embedding
// backfills, correlation scans) off the request path, one at a time in
// submission order.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Task statuses
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// TaskFunc is the unit of background work
type TaskFunc func(ctx context.Context) (interface{}, error)

// Task is the observable state of one submitted job
type Task struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

type job struct {
	id string
	fn TaskFunc
}

// Worker executes tasks sequentially in FIFO order
type Worker struct {
	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger

	mu    sync.RWMutex
	tasks map[string]*Task
}

// New creates and starts a worker. queueSize bounds how many tasks may wait.
func New(queueSize int, logger zerolog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "worker").Logger(),
		tasks:  make(map[string]*Task),
	}
	go w.run()
	return w
}

// Enqueue submits a task and returns its id. Fails when the queue is full.
func (w *Worker) Enqueue(name string, fn TaskFunc) (string, error) {
	id := uuid.NewString()
	task := &Task{
		ID:         id,
		Name:       name,
		Status:     StatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	w.mu.Lock()
	w.tasks[id] = task
	w.mu.Unlock()

	select {
	case w.queue <- job{id: id, fn: fn}:
		w.logger.Info().Str("task_id", id).Str("task", name).Msg("task queued")
		return id, nil
	default:
		w.mu.Lock()
		delete(w.tasks, id)
		w.mu.Unlock()
		return "", fmt.Errorf("task queue is full")
	}
}

// Status returns a snapshot of a task. The second return is false for
// unknown ids.
func (w *Worker) Status(id string) (Task, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	task, ok := w.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Cancel marks a queued task as cancelled so the worker skips it. A task
// that already started cannot be cancelled.
func (w *Worker) Cancel(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	task, ok := w.tasks[id]
	if !ok || task.Status != StatusQueued {
		return false
	}
	task.Status = StatusCancelled
	now := time.Now().UTC()
	task.FinishedAt = &now
	return true
}

// Shutdown stops accepting work and waits for the in-flight task, up to the
// context deadline
func (w *Worker) Shutdown(ctx context.Context) error {
	w.cancel()
	close(w.queue)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for j := range w.queue {
		w.mu.Lock()
		task, ok := w.tasks[j.id]
		if !ok || task.Status != StatusQueued {
			w.mu.Unlock()
			continue
		}
		now := time.Now().UTC()
		task.Status = StatusRunning
		task.StartedAt = &now
		w.mu.Unlock()

		result, err := j.fn(w.ctx)

		w.mu.Lock()
		finished := time.Now().UTC()
		task.FinishedAt = &finished
		if err != nil {
			task.Status = StatusError
			task.Error = err.Error()
			w.logger.Error().Err(err).Str("task_id", j.id).Str("task", task.Name).Msg("task failed")
		} else {
			task.Status = StatusDone
			task.Result = result
			w.logger.Info().Str("task_id", j.id).Str("task", task.Name).Msg("task complete")
		}
		w.mu.Unlock()
	}
}
