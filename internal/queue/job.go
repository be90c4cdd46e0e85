// Package queue provides the per-channel durable dispatch queues that
// decouple "decide to notify" from "attempt delivery". Jobs are delivered
// at least once: a worker acknowledges only after the attempt reaches a
// terminal outcome, so a crash mid-delivery redelivers the job.
package queue

import (
	"encoding/json"
	"time"
)

// Delivery channels. Each channel has an independent queue and worker pool.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelSlack   = "slack"
	ChannelTeams   = "teams"
	ChannelWebhook = "webhook"
)

// Channels lists every delivery channel in a stable order.
var Channels = []string{ChannelEmail, ChannelSMS, ChannelSlack, ChannelTeams, ChannelWebhook}

// Job is one unit of delivery work. Payload is channel-specific and decoded
// by the matching adapter.
type Job struct {
	ID          string          `json:"id"`
	Channel     string          `json:"channel"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	LogID       string          `json:"log_id"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Payload     json.RawMessage `json:"payload"`
}

// backoffBase is the first retry delay; each further retry doubles it.
const backoffBase = time.Second

// Backoff returns the delay before the given retry attempt. Attempt 1 is the
// first retry. The delay grows strictly: 1s, 2s, 4s, 8s, ...
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20 // avoid shift overflow on absurd attempt counts
	}
	return backoffBase << (attempt - 1)
}
