package indexing

import (
	"context"
	"sync"
)

// InMemoryQueue is a thread-safe Fake JobQueue for testing. Jobs are only
// recorded, never run.
type InMemoryQueue struct {
	mu      sync.Mutex
	bulk    []BulkExportJob
	exports []RecordJob
	deletes []RecordJob
	err     error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

func (q *InMemoryQueue) EnqueueBulkExport(_ context.Context, job BulkExportJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.bulk = append(q.bulk, job)
	return nil
}

func (q *InMemoryQueue) EnqueueExport(_ context.Context, job RecordJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.exports = append(q.exports, job)
	return nil
}

func (q *InMemoryQueue) EnqueueDelete(_ context.Context, job RecordJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.deletes = append(q.deletes, job)
	return nil
}

// --- Test Helper Methods (Not part of JobQueue interface) ---

// Fail makes every enqueue return err.
func (q *InMemoryQueue) Fail(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *InMemoryQueue) BulkJobs() []BulkExportJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]BulkExportJob(nil), q.bulk...)
}

func (q *InMemoryQueue) ExportJobs() []RecordJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]RecordJob(nil), q.exports...)
}

func (q *InMemoryQueue) DeleteJobs() []RecordJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]RecordJob(nil), q.deletes...)
}
