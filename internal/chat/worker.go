package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrWorkerStopped is returned when work is submitted after the worker
// exited.
var ErrWorkerStopped = errors.New("chat worker stopped")

// ErrTaskPanicked is returned by Do when the task panicked.
var ErrTaskPanicked = errors.New("chat task panicked")

// Worker runs every chat, join, quit, reload and remote render task on one
// goroutine, so listener sets and session state never need locks.
type Worker struct {
	tasks  chan func()
	done   chan struct{}
	logger *slog.Logger
}

// NewWorker creates a worker with a bounded queue.
func NewWorker(queue int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if queue <= 0 {
		queue = 256
	}
	return &Worker{
		tasks:  make(chan func(), queue),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run drains the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		select {
		case task := <-w.tasks:
			w.run(task)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("chat task panicked", "panic", r)
		}
	}()
	task()
}

// Submit queues task without waiting for it. It blocks while the queue is
// full, until ctx is done.
func (w *Worker) Submit(ctx context.Context, task func()) error {
	select {
	case w.tasks <- task:
		return nil
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs task on the worker and waits for its result.
func (w *Worker) Do(ctx context.Context, task func() error) error {
	result := make(chan error, 1)
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("chat task panicked", "panic", r)
				result <- fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			}
		}()
		result <- task()
	}
	if err := w.Submit(ctx, wrapped); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
