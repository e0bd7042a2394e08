package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loresmith/loresmith-be/types"
)

const DefaultWorkerCount = 4

// Processor handles a single ingest job end to end.
type Processor interface {
	ProcessResource(ctx context.Context, job types.IngestJob) error
}

// Pool consumes ingest jobs with a bounded number of workers. Job failures
// are logged and dropped; the resource itself records the failure through
// its status, so the pool never retries.
type Pool struct {
	workers   int
	queue     JobQueue
	processor Processor
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewPool(workers int, queue JobQueue, processor Processor, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &Pool{
		workers:   workers,
		queue:     queue,
		processor: processor,
		logger:    logger,
	}
}

// Start launches the worker goroutines. They run until the context is
// cancelled or the queue is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting ingest workers", "count", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	logger := p.logger.With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			logger.Info("ingest worker shutting down")
			return
		case job, ok := <-p.queue.Jobs():
			if !ok {
				logger.Info("job queue closed, ingest worker exiting")
				return
			}
			logger.Info("picked up ingest job", "resource_id", job.ResourceID.String())
			if err := p.processor.ProcessResource(ctx, job); err != nil {
				logger.Error("ingest job failed",
					"resource_id", job.ResourceID.String(),
					"error", err)
			}
		}
	}
}
