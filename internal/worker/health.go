package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

// WebhookHealthHook returns the webhook pool's result hook: terminal
// outcomes update the endpoint's health counters, and the failure path runs
// the status thresholds so a persistently broken endpoint walks from ACTIVE
// through FAILING to DISABLED.
func WebhookHealthHook(endpoints storage.WebhookEndpointStore, t webhook.Thresholds, logger *slog.Logger) ResultHook {
	return func(ctx context.Context, job queue.Job, deliveryErr error) {
		var d webhook.DeliveryJob
		if err := json.Unmarshal(job.Payload, &d); err != nil {
			logger.Error("decoding webhook job for health update", "job_id", job.ID, "error", err)
			return
		}

		if deliveryErr == nil {
			if err := endpoints.RecordSuccess(ctx, d.EndpointID); err != nil {
				logger.Error("recording endpoint success", "endpoint_id", d.EndpointID, "error", err)
			}
			return
		}

		status, err := endpoints.RecordFailure(ctx, d.EndpointID, deliveryErr.Error(), t)
		if err != nil {
			logger.Error("recording endpoint failure", "endpoint_id", d.EndpointID, "error", err)
			return
		}
		if status == webhook.StatusDisabled {
			logger.Warn("webhook endpoint disabled after repeated failures",
				"endpoint_id", d.EndpointID, "url", d.URL)
		}
	}
}
