package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"playersync/pkg/logger"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of work run on one of the pool's goroutines
type Job func(ctx context.Context)

// WorkerPool runs jobs on a fixed set of goroutines fed by a bounded queue.
// It is the only place playersync starts background work from.
type WorkerPool struct {
	logger     *logger.Logger
	numWorkers int
	inputChan  chan Job
	wg         sync.WaitGroup
	cancel     context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool with numWorkers goroutines and a queue of queueSize jobs
func NewWorkerPool(l *logger.Logger, numWorkers, queueSize int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < numWorkers {
		queueSize = numWorkers * 2
	}
	return &WorkerPool{
		logger:     l,
		numWorkers: numWorkers,
		inputChan:  make(chan Job, queueSize),
	}
}

// Start launches the worker goroutines. Jobs receive a context derived from ctx.
func (p *WorkerPool) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
}

// Submit queues a job, blocking while the queue is full
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.inputChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))
	for job := range p.inputChan {
		p.run(ctx, id, job)
	}
	p.logger.Debug("worker stopped", zap.Int("worker_id", id))
}

func (p *WorkerPool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", fmt.Errorf("%v", r), zap.Int("worker_id", id))
		}
	}()
	job(ctx)
}

// Shutdown stops accepting jobs, lets queued jobs finish and waits for the workers
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inputChan)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if p.cancel != nil {
			p.cancel()
		}
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		return ctx.Err()
	}
}

// Future is the pending result of a job submitted with Submit
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job finished or ctx is done
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit runs fn on the pool and returns a future for its result
func Submit[T any](ctx context.Context, p *WorkerPool, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	err := p.Submit(ctx, func(jobCtx context.Context) {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		f.value, f.err = fn(jobCtx)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
