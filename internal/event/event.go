// Package event defines the domain event envelope consumed from the message
// bus and the well-known event types the engine routes.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known event types. Producers use dotted lowercase names.
const (
	TypeNotificationSend = "notification.send"
	TypeLinkCreated      = "link.created"
	TypeLinkClicked      = "link.clicked"
	TypeMilestoneReached = "link.milestone.reached"
	TypeCampaignGoal     = "campaign.goal.reached"
	TypeWeeklyReport     = "report.weekly"
)

// Routing keys partition events on the bus by category.
const (
	KeyNotificationEmail   = "events:notification-email"
	KeyNotificationSlack   = "events:notification-slack"
	KeyNotificationWebhook = "events:notification-webhook"
	KeyDomainEvents        = "events:domain"
)

// Envelope is the inbound domain event. Events are immutable; ID is used for
// idempotency when the bus redelivers.
type Envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

// ErrMalformed marks an event that can never be processed. Malformed input is
// a permanent fault: the consumer drops it instead of retrying.
var ErrMalformed = errors.New("malformed event")

// Parse decodes and validates a raw bus message into an Envelope.
func Parse(raw []byte) (Envelope, error) {
	var ev Envelope
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.ID == "" {
		return Envelope{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if ev.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	return ev, nil
}

// String returns a value from the event data as a string, trying both the
// given key and its alias. Producers are inconsistent about snake_case vs
// camelCase, so callers pass both forms.
func (e Envelope) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := e.Data[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
