package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dequeueBlock     = 5 * time.Second
	delayedPoll      = time.Second
	delayedBatch     = 100
	reapPoll         = 30 * time.Second
	defaultReapAfter = 2 * time.Minute
	processingKey    = ":processing"
	delayedKey       = ":delayed"
	claimsKey        = ":claims"
)

// RedisQueue is a durable Queue backed by Redis lists. Ready jobs live in a
// list; Dequeue moves a job atomically into a per-channel processing list
// (BLMOVE) and Ack removes it, so jobs survive a worker crash between
// dequeue and acknowledgement. Each dequeued entry also gets a claim
// timestamp in a sorted set; the reaper pushes entries whose claim has gone
// stale back onto the ready list. Delayed retries live in a second sorted
// set scored by due time and are moved back to the ready list by a poller
// goroutine.
type RedisQueue struct {
	client    *redis.Client
	key       string
	logger    *slog.Logger
	reapAfter time.Duration
}

// NewRedisQueue creates a queue for one channel on the given Redis client.
// Key is typically "notify:queue:<channel>".
func NewRedisQueue(client *redis.Client, key string, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{client: client, key: key, logger: logger, reapAfter: defaultReapAfter}
}

// Enqueue pushes the job onto the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

// EnqueueDelayed schedules the job onto the delayed set, due after delay.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.key+delayedKey, redis.Z{Score: due, Member: raw}).Err(); err != nil {
		return fmt.Errorf("scheduling job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks until a job is available, moving it to the processing list.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		raw, err := q.client.BLMove(ctx, q.key, q.key+processingKey, "RIGHT", "LEFT", dequeueBlock).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Timed out with no job; keep waiting unless canceled.
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, fmt.Errorf("dequeueing from %s: %w", q.key, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// Poison entry: remove it from processing and move on.
			q.logger.Warn("dropping undecodable job", "queue", q.key, "error", err)
			q.client.LRem(ctx, q.key+processingKey, 1, raw)
			q.client.ZRem(ctx, q.key+claimsKey, raw)
			continue
		}

		claim := redis.Z{Score: float64(time.Now().UnixMilli()), Member: raw}
		if err := q.client.ZAddNX(ctx, q.key+claimsKey, claim).Err(); err != nil {
			// The reaper adopts unclaimed processing entries, so the job is
			// still recoverable after a crash.
			q.logger.Warn("recording job claim failed", "queue", q.key, "job_id", job.ID, "error", err)
		}

		entry := raw
		return &Delivery{Job: job, ack: func(ackCtx context.Context) error {
			_ = q.client.ZRem(ackCtx, q.key+claimsKey, entry).Err()
			return q.client.LRem(ackCtx, q.key+processingKey, 1, entry).Err()
		}}, nil
	}
}

// Depth reports ready plus delayed jobs.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring queue %s: %w", q.key, err)
	}
	delayed, err := q.client.ZCard(ctx, q.key+delayedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring delayed set %s: %w", q.key, err)
	}
	return ready + delayed, nil
}

// RunDelayedMover polls the delayed set and promotes due jobs to the ready
// list. It blocks until ctx is canceled. Each channel's queue runs one mover.
func (q *RedisQueue) RunDelayedMover(ctx context.Context) {
	ticker := time.NewTicker(delayedPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("promoting delayed jobs failed", "queue", q.key, "error", err)
			}
		}
	}
}

// RunReaper requeues jobs stuck in the processing list. A worker crash
// between dequeue and ack leaves the entry there; once its claim is older
// than the reap deadline the entry goes back onto the ready list for
// redelivery. It blocks until ctx is canceled. Each channel's queue runs one
// reaper.
func (q *RedisQueue) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(reapPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.reapStale(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("reaping stale jobs failed", "queue", q.key, "error", err)
			}
		}
	}
}

func (q *RedisQueue) reapStale(ctx context.Context) error {
	now := time.Now().UnixMilli()

	// Adopt processing entries that have no claim. They belong to a worker
	// that crashed between the move and the claim write; give them a claim
	// now so they age toward the deadline like any other.
	entries, err := q.client.LRange(ctx, q.key+processingKey, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, raw := range entries {
		if err := q.client.ZAddNX(ctx, q.key+claimsKey, redis.Z{Score: float64(now), Member: raw}).Err(); err != nil {
			return err
		}
	}

	cutoff := fmt.Sprintf("%d", now-q.reapAfter.Milliseconds())
	stale, err := q.client.ZRangeByScore(ctx, q.key+claimsKey, &redis.ZRangeBy{
		Min: "-inf", Max: cutoff, Count: delayedBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range stale {
		// Same remove-first race guard as the delayed mover: whoever wins
		// the ZRem owns the requeue.
		removed, err := q.client.ZRem(ctx, q.key+claimsKey, raw).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		// An entry gone from processing was acked in the meantime.
		moved, err := q.client.LRem(ctx, q.key+processingKey, 1, raw).Result()
		if err != nil {
			return err
		}
		if moved == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
			return err
		}
		q.logger.Warn("requeued stale job from processing list", "queue", q.key)
	}
	return nil
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	entries, err := q.client.ZRangeByScore(ctx, q.key+delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: delayedBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, raw := range entries {
		// Remove first: if another mover instance raced us, ZRem returns 0
		// and we skip the push, keeping promotion exactly-once.
		removed, err := q.client.ZRem(ctx, q.key+delayedKey, raw).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
			return err
		}
	}
	return nil
}
