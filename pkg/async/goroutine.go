package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, log *logrus.Logger, fn func(context.Context) error) {
	if log == nil {
		log = logrus.New()
	}
	go func() {
		ctx := parentCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic in %s: %v\n%s", taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			// Caller decides whether this is critical; we only record it.
			log.Warnf("error in %s: %v", taskName, err)
		}
	}()
}

// SafeGoNoError is SafeGo for functions that cannot fail.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, log *logrus.Logger, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, log, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown and error collection.
type WorkerPool struct {
	workers  int
	taskName string
	timeout  time.Duration
	workCh   chan func(context.Context) error
	doneCh   chan struct{}
	errCh    chan error
	ctx      context.Context
	cancel   context.CancelFunc
	log      *logrus.Logger

	shutdownOnce sync.Once
}

// NewWorkerPool creates and starts a new worker pool.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, log *logrus.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the worker pool.
// Returns an error if the pool is shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool %q shut down", p.taskName)
	default:
	}

	defer func() {
		// A shutdown between the check above and the send below closes the
		// channel under us; treat that as a shutdown, not a crash.
		recover() //nolint:errcheck
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool %q shut down", p.taskName)
	}
}

// Shutdown gracefully shuts down the worker pool.
// Waits up to timeout for workers to finish current tasks.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		func() {
			defer func() { recover() }()
			close(p.workCh)
		}()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives worker errors.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("panic in worker %d (%s): %v\n%s", id, p.taskName, r, string(debug.Stack()))
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}

			ctx := p.ctx
			var cancel context.CancelFunc = func() {}
			if p.timeout > 0 {
				ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
			}

			func() {
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						p.collect(fmt.Errorf("panic: %v", r))
					}
				}()

				if err := fn(ctx); err != nil {
					p.collect(err)
				}
			}()
		}
	}
}

func (p *WorkerPool) collect(err error) {
	select {
	case p.errCh <- err:
	default:
		p.log.Warnf("worker pool %q error channel full, dropping error: %v", p.taskName, err)
	}
}

// Batch runs fn over every item with bounded concurrency and returns the
// collected errors. It blocks until all items are processed or ctx is
// cancelled.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration, log *logrus.Logger, fn func(context.Context, T) error) []error {
	pool := NewWorkerPool(ctx, workers, taskName, timeout, log)

	shutdownTimeout := timeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = time.Second
	}
	defer pool.Shutdown(shutdownTimeout) //nolint:errcheck

	var errs []error
	done := make(chan error, len(items))
	submitted := 0
	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			done <- fn(ctx, item)
			return nil
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		submitted++
	}

	for i := 0; i < submitted; i++ {
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return append(errs, ctx.Err())
		}
	}
	return errs
}
