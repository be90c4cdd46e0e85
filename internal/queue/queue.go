package queue

import (
	"context"
	"sync"
	"time"
)

// Delivery is a dequeued job plus its acknowledgement handle. Ack must be
// called exactly once, after the delivery attempt reaches a terminal outcome
// (success or permanent failure). Acking earlier would lose retries on crash.
type Delivery struct {
	Job Job
	ack func(ctx context.Context) error
}

// Ack removes the job from the processing set.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue is one channel's durable work queue.
type Queue interface {
	// Enqueue makes the job immediately available to workers.
	Enqueue(ctx context.Context, job Job) error
	// EnqueueDelayed schedules the job to become available after delay.
	// Used for retry backoff.
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error
	// Dequeue blocks until a job is available or ctx is canceled.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Depth reports how many jobs are waiting (ready plus delayed).
	Depth(ctx context.Context) (int64, error)
}

// MemoryQueue is a channel-backed Queue for tests and single-process runs.
type MemoryQueue struct {
	ch     chan Job
	mu     sync.Mutex
	timers []*time.Timer
	acked  int
	closed bool
}

// NewMemoryQueue creates a MemoryQueue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{ch: make(chan Job, size)}
}

// Enqueue adds the job to the buffer, failing if ctx is done and the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueDelayed re-enqueues the job after delay via a timer.
func (q *MemoryQueue) EnqueueDelayed(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	t := time.AfterFunc(delay, func() {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case q.ch <- job:
		default:
			// Buffer full after the delay; drop rather than block the timer
			// goroutine. The job is already counted as a retry.
		}
	})
	q.timers = append(q.timers, t)
	return nil
}

// Dequeue blocks until a job arrives or ctx is canceled.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case job := <-q.ch:
		return &Delivery{Job: job, ack: func(context.Context) error {
			q.mu.Lock()
			q.acked++
			q.mu.Unlock()
			return nil
		}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth reports the number of buffered jobs.
func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Acked reports how many deliveries have been acknowledged.
func (q *MemoryQueue) Acked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

// Close stops pending delay timers.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
}
