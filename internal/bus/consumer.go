// Package bus consumes domain events from the Redis message bus and feeds
// them to the router. Malformed messages are dropped with a log line; they
// can never succeed, so retrying them would only wedge the stream.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/awd2211/lnk.day-sub003/internal/event"
	"github.com/awd2211/lnk.day-sub003/internal/metrics"
)

// Handler processes one parsed event. A returned error is logged; the event
// is not redelivered, because downstream delivery retries live in the
// per-channel queues, not on the bus.
type Handler func(ctx context.Context, ev event.Envelope) error

// Consumer pulls raw events from a set of Redis list keys.
type Consumer struct {
	client  *redis.Client
	keys    []string
	handler Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewConsumer creates a Consumer reading from the given routing keys.
func NewConsumer(client *redis.Client, keys []string, handler Handler, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		keys:    keys,
		handler: handler,
		metrics: m,
		logger:  logger,
	}
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		res, err := c.client.BRPop(ctx, 5*time.Second, c.keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("bus read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		c.dispatch(ctx, res[0], []byte(res[1]))
	}
}

func (c *Consumer) dispatch(ctx context.Context, key string, raw []byte) {
	ev, err := event.Parse(raw)
	if err != nil {
		c.metrics.Dropped.Inc()
		c.logger.Warn("dropping malformed event", "key", key, "error", err)
		return
	}

	if err := c.handler(ctx, ev); err != nil {
		c.logger.Error("event handling failed",
			"event_id", ev.ID, "type", ev.Type, "key", key, "error", err)
	}
}

// Dispatch parses and handles one raw message. Exposed so single-process
// setups and tests can inject events without a Redis round trip.
func (c *Consumer) Dispatch(ctx context.Context, key string, raw []byte) {
	c.dispatch(ctx, key, raw)
}
