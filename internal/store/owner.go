package store

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Owner serializes all work for a conversation through a single goroutine.
// The version check in Save already rejects stale writers; the Owner removes
// the retry churn for the common case by making sure two messages for the
// same conversation are never processed at once within this process.
type Owner struct {
	mu      sync.Mutex
	workers map[string]*convWorker
	closed  bool
}

type convWorker struct {
	jobs chan ownerJob
	done chan struct{}
}

type ownerJob struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
}

// NewOwner creates an owner with no workers. Workers are spawned lazily per
// conversation and live until Close.
func NewOwner() *Owner {
	return &Owner{workers: make(map[string]*convWorker)}
}

// Do runs fn on the conversation's worker goroutine and waits for the result.
func (o *Owner) Do(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return fmt.Errorf("owner is closed")
	}
	w, exists := o.workers[conversationID]
	if !exists {
		w = &convWorker{
			jobs: make(chan ownerJob, 16),
			done: make(chan struct{}),
		}
		o.workers[conversationID] = w
		go w.run(conversationID)
	}
	o.mu.Unlock()

	job := ownerJob{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case w.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *convWorker) run(conversationID string) {
	for {
		select {
		case job := <-w.jobs:
			if job.ctx.Err() != nil {
				job.result <- job.ctx.Err()
				continue
			}
			job.result <- job.fn(job.ctx)
		case <-w.done:
			// Drain queued jobs so no caller blocks forever.
			for {
				select {
				case job := <-w.jobs:
					job.result <- fmt.Errorf("owner is closed")
				default:
					log.Printf("[Owner] Stopped worker for conversation %s", conversationID)
					return
				}
			}
		}
	}
}

// Close stops all workers. Jobs already queued are rejected.
func (o *Owner) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for _, w := range o.workers {
		close(w.done)
	}
	o.workers = nil
}
