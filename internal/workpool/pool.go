// Package workpool runs connection tasks on an unbounded set of goroutines
// and shuts them down in two steps.
//
// Shutdown first stops new submissions and closes the Draining channel so
// tasks can wind down on their own. If they have not finished by the drain
// deadline the task context is canceled; tasks are expected to tie their
// sockets to that context (see CloseOnCancel) so blocked I/O fails promptly.
package workpool

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by Go once Shutdown has started.
var ErrClosed = errors.New("workpool: closed")

// forceGrace bounds the wait for tasks after their context is canceled.
const forceGrace = 2 * time.Second

// Pool is an unbounded goroutine pool with a drain-then-force shutdown.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	draining chan struct{}
	wg       sync.WaitGroup
}

// New returns a Pool whose task context derives from ctx.
func New(ctx context.Context) *Pool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		ctx:      ctx,
		cancel:   cancel,
		draining: make(chan struct{}),
	}
}

// Go runs task on a new goroutine. The context passed to task is canceled
// when a shutdown is forced or the parent context ends.
func (p *Pool) Go(task func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.wg.Go(func() {
		task(p.ctx)
	})
	return nil
}

// Draining is closed once Shutdown has been called.
func (p *Pool) Draining() <-chan struct{} {
	return p.draining
}

// IsDraining reports whether Shutdown has been called.
func (p *Pool) IsDraining() bool {
	select {
	case <-p.draining:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting tasks, signals Draining and waits up to timeout
// for running tasks. Remaining tasks then have their context canceled and
// get a short grace period to exit. It reports whether every task finished
// before the deadline. Calling Shutdown again just waits again.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.draining)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return true
	case <-timer.C:
	}

	p.cancel()

	grace := time.NewTimer(forceGrace)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
	}
	return false
}

// CloseOnCancel closes c when ctx is canceled. The returned stop function
// detaches c again; it reports false if the close already ran.
func CloseOnCancel(ctx context.Context, c io.Closer) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
}
