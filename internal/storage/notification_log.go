package storage

import (
	"context"
	"time"
)

// Log row lifecycle states. A row starts pending and settles as sent or
// failed when the delivery reaches a terminal outcome.
const (
	LogStatusPending = "pending"
	LogStatusSent    = "sent"
	LogStatusFailed  = "failed"
)

// NotificationLogEntry is the durable record of a single send attempt.
// Resends create a new row whose metadata carries resend_of pointing at the
// original; the original row is never mutated by a resend.
type NotificationLogEntry struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // delivery channel
	Recipient    string         `json:"recipient"`
	Subject      string         `json:"subject"`
	Status       string         `json:"status"`
	TemplateName string         `json:"template_name,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	DeliveredAt  *time.Time     `json:"delivered_at,omitempty"`
	OpenedAt     *time.Time     `json:"opened_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NotificationLogStore persists delivery attempt records.
type NotificationLogStore interface {
	// CreatePending inserts a new pending row and returns its id. The
	// template name, when relevant, travels in metadata under "template".
	CreatePending(ctx context.Context, channel, recipient, subject string, metadata map[string]any) (string, error)
	// MarkSent settles the row as delivered.
	MarkSent(ctx context.Context, id string) error
	// MarkFailed settles the row as permanently failed with the error detail.
	MarkFailed(ctx context.Context, id, errorMessage string) error
	// Get returns one row by id.
	Get(ctx context.Context, id string) (*NotificationLogEntry, error)
	// List returns the most recent rows, up to limit.
	List(ctx context.Context, limit int) ([]NotificationLogEntry, error)
	// ListByEndpoint returns the most recent rows for one webhook endpoint.
	ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]NotificationLogEntry, error)
}
