// Package worker runs the per-channel delivery pools. Each pool dequeues
// jobs from its channel queue, hands them to the channel's adapter, and
// settles the outcome: success marks the log row sent, a retryable failure
// re-enqueues with exponential backoff, and an exhausted job is marked
// failed. The job is acknowledged only after one of those terminal steps, so
// a crash mid-delivery redelivers.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/awd2211/lnk.day-sub003/internal/metrics"
	"github.com/awd2211/lnk.day-sub003/internal/notifier"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
)

// ResultHook observes terminal delivery outcomes. deliveryErr is nil on
// success and the final attempt's error when the job exhausted its attempts.
type ResultHook func(ctx context.Context, job queue.Job, deliveryErr error)

// Pool is one channel's worker pool.
type Pool struct {
	channel  string
	queue    queue.Queue
	notifier notifier.Notifier
	logs     storage.NotificationLogStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	workers  int
	onResult ResultHook
}

// NewPool creates a pool of size workers for the adapter's channel. onResult
// may be nil.
func NewPool(q queue.Queue, n notifier.Notifier, logs storage.NotificationLogStore, m *metrics.Metrics, workers int, onResult ResultHook, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		channel:  n.Name(),
		queue:    q,
		notifier: n,
		logs:     logs,
		metrics:  m,
		logger:   logger.With("channel", n.Name()),
		workers:  workers,
		onResult: onResult,
	}
}

// Run starts the workers and blocks until ctx is canceled and every worker
// has drained its in-flight job.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		p.process(ctx, d)
	}
}

// process runs one delivery attempt and settles it. Bookkeeping after the
// attempt uses a non-cancelable context so a shutdown mid-settle does not
// leave the job unacked with its log row already updated.
func (p *Pool) process(ctx context.Context, d *queue.Delivery) {
	job := d.Job
	err := p.notifier.Deliver(ctx, job)

	settleCtx := context.WithoutCancel(ctx)

	if err == nil {
		if job.LogID != "" {
			if markErr := p.logs.MarkSent(settleCtx, job.LogID); markErr != nil {
				p.logger.Error("marking log sent", "job_id", job.ID, "error", markErr)
			}
		}
		p.metrics.Deliveries.WithLabelValues(p.channel, storage.LogStatusSent).Inc()
		p.finish(settleCtx, d, job, nil)
		return
	}

	if job.Attempt < job.MaxAttempts {
		retry := job
		retry.Attempt++
		delay := queue.Backoff(job.Attempt)
		p.logger.Warn("delivery failed, retrying",
			"job_id", job.ID, "attempt", job.Attempt, "max_attempts", job.MaxAttempts,
			"delay", delay.String(), "error", err)
		if enqErr := p.queue.EnqueueDelayed(settleCtx, retry, delay); enqErr != nil {
			// Leave the job unacked: the processing-list reaper or a restart
			// will redeliver it instead of losing the retry.
			p.logger.Error("re-enqueue failed, leaving job unacked", "job_id", job.ID, "error", enqErr)
			return
		}
		p.metrics.Retries.WithLabelValues(p.channel).Inc()
		if ackErr := d.Ack(settleCtx); ackErr != nil {
			p.logger.Error("ack failed after retry enqueue", "job_id", job.ID, "error", ackErr)
		}
		return
	}

	p.logger.Error("delivery failed permanently",
		"job_id", job.ID, "attempt", job.Attempt, "error", err)
	if job.LogID != "" {
		if markErr := p.logs.MarkFailed(settleCtx, job.LogID, err.Error()); markErr != nil {
			p.logger.Error("marking log failed", "job_id", job.ID, "error", markErr)
		}
	}
	p.metrics.Deliveries.WithLabelValues(p.channel, storage.LogStatusFailed).Inc()
	p.finish(settleCtx, d, job, err)
}

func (p *Pool) finish(ctx context.Context, d *queue.Delivery, job queue.Job, deliveryErr error) {
	if p.onResult != nil {
		p.onResult(ctx, job, deliveryErr)
	}
	if err := d.Ack(ctx); err != nil {
		p.logger.Error("ack failed", "job_id", job.ID, "error", err)
	}
}

// ReportDepth publishes the channel's queue depth gauge until ctx is canceled.
func (p *Pool) ReportDepth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := p.queue.Depth(ctx)
			if err != nil {
				continue
			}
			p.metrics.QueueDepth.WithLabelValues(p.channel).Set(float64(depth))
		}
	}
}
