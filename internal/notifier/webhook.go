package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

// WebhookNotifier executes the signed HTTP deliveries the dispatcher
// enqueues. The job already carries the exact body and headers to send, so
// retries replay a byte-identical request with the original signature.
type WebhookNotifier struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates the outbound webhook adapter.
func NewWebhookNotifier(logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: newHTTPClient(webhook.DeliveryTimeout),
		logger: logger,
	}
}

// Name returns the channel identifier.
func (n *WebhookNotifier) Name() string { return queue.ChannelWebhook }

// Deliver POSTs the prepared body to the endpoint. Any status outside 2xx is
// a failed delivery.
func (n *WebhookNotifier) Deliver(ctx context.Context, job queue.Job) error {
	var d webhook.DeliveryJob
	if err := json.Unmarshal(job.Payload, &d); err != nil {
		return fmt.Errorf("decoding webhook job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering to %s: %w", d.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint %s returned status %d", d.EndpointID, resp.StatusCode)
	}

	n.logger.Debug("webhook delivered", "endpoint_id", d.EndpointID,
		"event", d.Event, "status", resp.StatusCode)
	return nil
}
