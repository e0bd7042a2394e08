package queue

import (
	"context"
	"sync"

	"github.com/loresmith/loresmith-be/types"
)

const DefaultQueueSize = 256

// JobQueue accepts ingest jobs and hands each one to exactly one worker at a
// time. Delivery is at least once: consumers must tolerate re-running a job
// from the top.
type JobQueue interface {
	Enqueue(ctx context.Context, job types.IngestJob) error
	Jobs() <-chan types.IngestJob
	Close()
}

// InMemoryQueue is a buffered channel-backed queue for single-process
// deployments.
type InMemoryQueue struct {
	jobs      chan types.IngestJob
	closeOnce sync.Once
}

func NewInMemoryQueue(size int) *InMemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &InMemoryQueue{
		jobs: make(chan types.IngestJob, size),
	}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, job types.IngestJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Jobs() <-chan types.IngestJob {
	return q.jobs
}

// Close stops job delivery once the buffer drains. Enqueue must not be
// called after Close.
func (q *InMemoryQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
	})
}
