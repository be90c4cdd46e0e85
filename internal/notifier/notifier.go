// Package notifier contains the per-channel provider adapters. Each adapter
// performs one delivery attempt for its channel. Adapters tolerate incomplete
// configuration: absent credentials degrade to a clearly logged no-op so one
// misconfigured channel cannot block the others.
package notifier

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/awd2211/lnk.day-sub003/internal/queue"
)

// Notifier performs one delivery attempt for a job on its channel.
type Notifier interface {
	// Name returns the channel identifier (e.g. "email").
	Name() string
	// Deliver executes one attempt. A nil return is a terminal success
	// (including configured no-op degradation); an error is retried by the
	// worker until the job's attempt cap.
	Deliver(ctx context.Context, job queue.Job) error
}

// EmailJob is the email channel's job payload.
type EmailJob struct {
	To       string         `json:"to"`
	Name     string         `json:"name,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}

// SMSJob is the sms channel's job payload. Provider selects a carrier backend
// per message; empty means the configured default.
type SMSJob struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	Provider string `json:"provider,omitempty"`
}

// Chat message shapes built by the card builders.
const (
	CardLinkCreated  = "link-created"
	CardMilestone    = "milestone"
	CardAlert        = "alert"
	CardWeeklyReport = "weekly-report"
)

// ChatJob is the slack/teams channel job payload.
type ChatJob struct {
	TeamID     string         `json:"team_id"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	Channel    string         `json:"channel,omitempty"` // slack bot API fallback
	Card       string         `json:"card"`
	Data       map[string]any `json:"data,omitempty"`
}

// newHTTPClient builds the outbound client used by HTTP-based adapters:
// otel-instrumented transport and a bounded timeout so a slow destination
// cannot pin a worker.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
