package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-payhooks/core"
)

var ErrRunnerClosed = errors.New("webhooks: background runner is closed")

// BackgroundRunner executes work after the response has been written. Tasks
// inherit request values but not its cancellation, and every task outcome is
// logged and counted. Wait blocks until in-flight tasks finish.
type BackgroundRunner struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	closed   bool
	inFlight int
	observer core.Observer
}

func NewBackgroundRunner(observer core.Observer) *BackgroundRunner {
	return &BackgroundRunner{observer: observer}
}

func (r *BackgroundRunner) Go(ctx context.Context, name string, fields map[string]any, task func(context.Context) error) error {
	if r == nil {
		return fmt.Errorf("webhooks: background runner is not configured")
	}
	if task == nil {
		return fmt.Errorf("webhooks: background task is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.inFlight++
	r.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		startedAt := time.Now().UTC()
		var err error
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("webhooks: background task %s panicked: %v", name, recovered)
			}
			r.observer.ObserveOperation(detached, startedAt, "background_"+name, err, fields)
			r.mu.Lock()
			r.inFlight--
			r.mu.Unlock()
			r.wg.Done()
		}()
		err = task(detached)
	}()
	return nil
}

func (r *BackgroundRunner) Accepting() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

func (r *BackgroundRunner) InFlight() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// Close stops accepting new tasks. Running tasks are not interrupted.
func (r *BackgroundRunner) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Wait blocks until all tasks finish or ctx is done.
func (r *BackgroundRunner) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	if ctx == nil {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("webhooks: waiting for %d background tasks: %w", r.InFlight(), ctx.Err())
	}
}

func (r *BackgroundRunner) Shutdown(ctx context.Context) error {
	r.Close()
	return r.Wait(ctx)
}
