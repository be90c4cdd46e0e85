package queue

import (
	"context"
	"time"
)

// Test hooks for exercising the Redis queue maintenance loops directly.

func (q *RedisQueue) SetReapAfter(d time.Duration) { q.reapAfter = d }

func (q *RedisQueue) ReapStale(ctx context.Context) error { return q.reapStale(ctx) }

func (q *RedisQueue) PromoteDue(ctx context.Context) error { return q.promoteDue(ctx) }
