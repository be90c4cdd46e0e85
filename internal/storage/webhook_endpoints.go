package storage

import (
	"context"

	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

// WebhookEndpointStore persists webhook endpoints and their health counters.
// Endpoint CRUD lives in the configuration service; the engine reads
// endpoints and mutates only delivery outcome state.
type WebhookEndpointStore interface {
	// Get returns one endpoint by id.
	Get(ctx context.Context, id string) (*webhook.Endpoint, error)
	// ListForEvent returns enabled, non-disabled endpoints subscribed to the
	// given event type, optionally scoped to a team ("" means all teams).
	ListForEvent(ctx context.Context, teamID, eventType string) ([]*webhook.Endpoint, error)
	// RecordSuccess applies a terminal delivery success: increments
	// successCount, resets consecutiveFailures, restores ACTIVE status
	// (unless the endpoint is DISABLED).
	RecordSuccess(ctx context.Context, id string) error
	// RecordFailure applies a terminal delivery failure and returns the
	// resulting status after threshold evaluation.
	RecordFailure(ctx context.Context, id, errorMessage string, t webhook.Thresholds) (webhook.Status, error)
	// MarkTriggered stamps lastTriggeredAt when a delivery job is enqueued.
	MarkTriggered(ctx context.Context, id string) error
	// SetEnabled re-enables (or disables) an endpoint. Re-enabling is the
	// only path out of DISABLED: it resets the failure streak and restores
	// ACTIVE.
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// Create inserts an endpoint. Used by seeding and tests; production
	// endpoints arrive via the configuration service's database.
	Create(ctx context.Context, ep *webhook.Endpoint) error
}
