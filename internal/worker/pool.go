// Package worker provides the bounded pool that batch runs execute on.
// Callers get a handle back immediately and poll it (or watch the
// notification channels) instead of blocking on completion.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolSaturated = errors.New("worker pool saturated")
var ErrPoolClosed = errors.New("worker pool closed")

// Handle tracks one submitted job.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Done reports completion without blocking the caller.
func (h *Handle) Done() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job finishes or ctx expires.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err is valid once Done reports true.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

type job struct {
	name   string
	fn     func(ctx context.Context) error
	handle *Handle
}

type Pool struct {
	logger *zap.Logger

	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// New starts size workers. Submissions beyond size queued jobs are
// rejected rather than queued unboundedly.
func New(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: logger,
		jobs:   make(chan job, size),
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	return p
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()
	for j := range p.jobs {
		err := j.fn(ctx)
		j.handle.err = err
		close(j.handle.done)
		if err != nil && p.logger != nil {
			p.logger.Error("background job failed",
				zap.String("job", j.name),
				zap.Error(err))
		}
	}
}

// Submit hands fn to the pool. The returned handle completes when fn
// returns; fn receives a context canceled on Shutdown.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) (*Handle, error) {
	if p == nil || fn == nil {
		return nil, ErrPoolClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	h := &Handle{name: name, done: make(chan struct{})}
	select {
	case p.jobs <- job{name: name, fn: fn, handle: h}:
		return h, nil
	default:
		return nil, ErrPoolSaturated
	}
}

// Shutdown stops accepting jobs, cancels the worker context, and waits for
// in-flight jobs up to ctx's deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
