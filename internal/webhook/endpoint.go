// Package webhook implements outbound webhook delivery: payload signing,
// subscription filtering, the per-endpoint health state machine, and the
// dispatcher that turns a matching event into an HTTP delivery job.
package webhook

import "time"

// Status is the endpoint health state. Transitions are driven by consecutive
// delivery failures: ACTIVE ⇄ FAILING → DISABLED. Only an explicit re-enable
// returns a DISABLED endpoint to ACTIVE.
type Status string

const (
	StatusActive   Status = "active"
	StatusFailing  Status = "failing"
	StatusDisabled Status = "disabled"
)

// Endpoint is a configured webhook destination owned by a team.
type Endpoint struct {
	ID               string            `json:"id"`
	TeamID           string            `json:"team_id"`
	UserID           string            `json:"user_id"`
	URL              string            `json:"url"`
	Secret           string            `json:"-"`
	SubscribedEvents []string          `json:"subscribed_events"`
	Filters          *Filters          `json:"filters,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Status           Status            `json:"status"`
	Enabled          bool              `json:"enabled"`

	SuccessCount        int64      `json:"success_count"`
	FailureCount        int64      `json:"failure_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastTriggeredAt     *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastErrorMessage    string     `json:"last_error_message,omitempty"`
}

// SubscribedTo reports whether the endpoint wants the given event type.
func (e *Endpoint) SubscribedTo(eventType string) bool {
	for _, ev := range e.SubscribedEvents {
		if ev == eventType {
			return true
		}
	}
	return false
}

// Payload is the webhook delivery POST body.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
