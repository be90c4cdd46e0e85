package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/awd2211/lnk.day-sub003/internal/queue"
)

// UserAgent identifies webhook deliveries to receivers.
const UserAgent = "lnkday-webhook/1.0"

// TestEvent is the synthetic event type used for endpoint test deliveries.
// Test deliveries skip the subscription and filter checks so an operator can
// exercise an endpoint regardless of its configuration.
const TestEvent = "webhook.test"

// DeliveryTimeout bounds a single outbound POST so a slow destination cannot
// pin a worker.
const DeliveryTimeout = 30 * time.Second

// Recorder creates the pending notification log row for an enqueued delivery.
// Implemented by the notification log store.
type Recorder interface {
	CreatePending(ctx context.Context, channel, recipient, subject string, metadata map[string]any) (string, error)
}

// DeliveryJob is the webhook channel's job payload: a fully signed HTTP POST
// waiting to be executed by a delivery worker.
type DeliveryJob struct {
	EndpointID string            `json:"endpoint_id"`
	URL        string            `json:"url"`
	Event      string            `json:"event"`
	Body       []byte            `json:"body"`
	Headers    map[string]string `json:"headers"`
}

// Dispatcher evaluates an endpoint's subscription and filters against a
// payload and, on match, signs the payload and enqueues an HTTP delivery job.
type Dispatcher struct {
	queue       queue.Queue
	recorder    Recorder
	maxAttempts int
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher feeding the webhook channel queue.
func NewDispatcher(q queue.Queue, recorder Recorder, maxAttempts int, logger *slog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	return &Dispatcher{queue: q, recorder: recorder, maxAttempts: maxAttempts, logger: logger}
}

// Send runs the delivery decision for one endpoint. Disabled endpoints,
// unsubscribed events, and filter mismatches are silent no-ops. Signature or
// encoding problems are treated as a non-match rather than a worker fault.
func (d *Dispatcher) Send(ctx context.Context, endpoint *Endpoint, payload Payload) error {
	if !endpoint.Enabled || endpoint.Status == StatusDisabled {
		return nil
	}
	if payload.Event != TestEvent {
		if !endpoint.SubscribedTo(payload.Event) {
			return nil
		}
		if !endpoint.Filters.Matches(payload.Data) {
			return nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Warn("webhook payload not encodable, skipping delivery",
			"endpoint_id", endpoint.ID, "event", payload.Event, "error", err)
		return nil
	}

	headers := map[string]string{
		"Content-Type":        "application/json",
		"X-Webhook-Signature": Sign(endpoint.Secret, body),
		"X-Webhook-ID":        endpoint.ID,
		"User-Agent":          UserAgent,
	}
	for k, v := range endpoint.Headers {
		headers[k] = v
	}

	raw, err := json.Marshal(DeliveryJob{
		EndpointID: endpoint.ID,
		URL:        endpoint.URL,
		Event:      payload.Event,
		Body:       body,
		Headers:    headers,
	})
	if err != nil {
		return fmt.Errorf("encoding delivery job: %w", err)
	}

	// The job payload travels in the log metadata so a resend can replay the
	// exact delivery, signature included.
	logID, err := d.recorder.CreatePending(ctx, queue.ChannelWebhook, endpoint.URL, payload.Event, map[string]any{
		"endpoint_id": endpoint.ID,
		"event":       payload.Event,
		"payload":     json.RawMessage(raw),
	})
	if err != nil {
		return fmt.Errorf("recording pending delivery for endpoint %s: %w", endpoint.ID, err)
	}

	job := queue.Job{
		ID:          uuid.NewString(),
		Channel:     queue.ChannelWebhook,
		Attempt:     1,
		MaxAttempts: d.maxAttempts,
		LogID:       logID,
		EnqueuedAt:  time.Now(),
		Payload:     raw,
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueueing webhook job for endpoint %s: %w", endpoint.ID, err)
	}
	return nil
}
