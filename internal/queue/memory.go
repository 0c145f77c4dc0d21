package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/messenger/internal/bots"
)

// Memory is a bounded in-process worker pool.
type Memory struct {
	run     RunFunc
	workers int

	mu     sync.RWMutex
	jobs   chan bots.Job
	closed bool
}

// NewMemory creates a pool with the given workers and buffer size.
func NewMemory(workers, buffer int, run RunFunc) *Memory {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Memory{run: run, workers: workers, jobs: make(chan bots.Job, buffer)}
}

// Enqueue adds job without blocking. It fails when the buffer is full or
// the pool is closed.
func (q *Memory) Enqueue(_ context.Context, job bots.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrFull
	}
}

// Run starts the workers and blocks until ctx is done or Close drained
// the buffer.
func (q *Memory) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job, ok := <-q.jobs:
					if !ok {
						return nil
					}
					if err := q.run(gctx, job); err != nil {
						slog.Warn("queue.job.failed", "job", job.ID, "handler", job.Handler, "error", err)
					}
				}
			}
		})
	}
	slog.Info("queue.memory.started", "workers", q.workers, "buffer", cap(q.jobs))
	return g.Wait()
}

// Close stops accepting jobs. Workers finish the buffered ones and exit.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
