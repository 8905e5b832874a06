package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// LocalPool runs jobs in-process on a fixed number of workers. Dispatch
// blocks once the backlog is full, so at most workers jobs are in OCR at once
// and the rest wait.
type LocalPool struct {
	runner  Runner
	workers int
	jobs    chan models.RunRequest

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewLocalPool creates a pool; call Start before dispatching.
func NewLocalPool(runner Runner, workers, backlog int) (*LocalPool, error) {
	if runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if backlog < 0 {
		backlog = 0
	}
	return &LocalPool{
		runner:  runner,
		workers: workers,
		jobs:    make(chan models.RunRequest, backlog),
		logger:  logging.NewLogger("local-pool"),
	}, nil
}

// Start launches the workers.
func (p *LocalPool) Start() {
	p.logger.Info("Starting local worker pool", "workers", p.workers, "backlog", cap(p.jobs))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *LocalPool) worker(id int) {
	defer p.wg.Done()
	for req := range p.jobs {
		// jobs are not cancellable once started
		if _, err := p.runner.Run(context.Background(), req); err != nil {
			p.logger.Warn("Job failed", "worker", id, "job_id", req.JobID, "error", err)
		}
	}
}

// Dispatch queues req, waiting for room or until ctx is done.
func (p *LocalPool) Dispatch(ctx context.Context, req models.RunRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("worker pool is closed")
	}

	select {
	case p.jobs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued and running ones to finish.
func (p *LocalPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Local worker pool stopped")
}
