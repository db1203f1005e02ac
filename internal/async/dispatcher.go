package async

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Task is a unit of work run by the dispatcher.
type Task func(ctx context.Context) error

// Dispatcher runs tasks on their own goroutines and keeps track of them so
// the process can drain in-flight work before exiting.
type Dispatcher struct {
	Logger *slog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewDispatcher creates a dispatcher that logs task failures to logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{Logger: logger}
}

// Dispatch executes task asynchronously and returns immediately.
//
// The task receives a context that keeps the values of ctx but is never
// cancelled when ctx is, so a finished HTTP request does not abort the work.
// Panics are recovered and logged with a stack trace; returned errors are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, task Task) {
	taskCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	d.inFlight.Add(1)

	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				d.Logger.Error("panic in dispatched task",
					"task", name,
					"recover", r,
					"stack", string(debug.Stack()))
			}
		}()

		if err := task(taskCtx); err != nil {
			d.Logger.Error("dispatched task failed", "task", name, "error", err)
		}
	}()
}

// InFlight returns the number of tasks that have not finished yet.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Wait blocks until every dispatched task has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight tasks until they finish or ctx is done.
// Running tasks are never interrupted; on timeout ctx.Err() is returned and
// the tasks keep running until the process exits.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.Logger.Warn("shutdown grace period expired with tasks still running",
			"running", d.InFlight())
		return ctx.Err()
	}
}
