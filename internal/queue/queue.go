// Package queue provides the unbounded in-process FIFO shared by the worker
// pool. Enqueue never blocks and never rejects; backpressure is deliberately
// absent, workers throttle throughput.
package queue

import (
	"context"
	"sync"

	"github.com/pagekit/recognize-gw/internal/job"
)

// Queue is a thread-safe FIFO of pending jobs. The zero value is not usable;
// use New.
type Queue struct {
	mu     sync.Mutex
	items  []*job.Job
	notify chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends jb to the tail of the queue and wakes one waiting worker.
// It never blocks the caller.
func (q *Queue) Enqueue(jb *job.Job) {
	q.mu.Lock()
	q.items = append(q.items, jb)
	q.mu.Unlock()

	q.signal()
}

// Dequeue removes and returns the oldest job, blocking until one is available
// or ctx is cancelled. Jobs come out in strict arrival order.
func (q *Queue) Dequeue(ctx context.Context) (*job.Job, error) {
	for {
		if jb := q.pop(); jb != nil {
			return jb, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	jb := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]

	// More work pending: wake another waiter so a single notification is
	// never lost between concurrent dequeuers.
	if len(q.items) > 0 {
		q.signal()
	}
	return jb
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
