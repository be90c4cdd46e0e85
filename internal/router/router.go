// Package router turns inbound domain events into channel delivery jobs. It
// is the only component that decides WHO gets notified; the queues and
// workers downstream only decide how hard to try.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awd2211/lnk.day-sub003/internal/directory"
	"github.com/awd2211/lnk.day-sub003/internal/event"
	"github.com/awd2211/lnk.day-sub003/internal/metrics"
	"github.com/awd2211/lnk.day-sub003/internal/notifier"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

// Queues maps a delivery channel to its queue.
type Queues map[string]queue.Queue

// Router fans events out to the delivery channels.
type Router struct {
	queues      Queues
	logs        storage.NotificationLogStore
	endpoints   storage.WebhookEndpointStore
	teams       storage.TeamSettingsStore
	dispatcher  *webhook.Dispatcher
	directory   *directory.Client
	maxAttempts int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Router.
func New(queues Queues, logs storage.NotificationLogStore, endpoints storage.WebhookEndpointStore,
	teams storage.TeamSettingsStore, dispatcher *webhook.Dispatcher, dir *directory.Client,
	maxAttempts int, m *metrics.Metrics, logger *slog.Logger) *Router {
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	return &Router{
		queues:      queues,
		logs:        logs,
		endpoints:   endpoints,
		teams:       teams,
		dispatcher:  dispatcher,
		directory:   dir,
		maxAttempts: maxAttempts,
		metrics:     m,
		logger:      logger,
	}
}

// Route dispatches one event. Unroutable events are dropped with a log line;
// partial fanout failures are logged per target and do not abort the rest.
func (r *Router) Route(ctx context.Context, ev event.Envelope) error {
	switch ev.Type {
	case event.TypeNotificationSend:
		return r.routeExplicit(ctx, ev)
	case event.TypeLinkCreated:
		return r.routeDomain(ctx, ev, notifier.CardLinkCreated, func(s *storage.TeamChannelSettings) bool {
			return s.NotifyLinkCreated
		})
	case event.TypeMilestoneReached:
		return r.routeMilestone(ctx, ev)
	case event.TypeCampaignGoal:
		return r.routeGoal(ctx, ev)
	case event.TypeWeeklyReport:
		return r.routeDomain(ctx, ev, notifier.CardWeeklyReport, func(s *storage.TeamChannelSettings) bool {
			return s.WeeklyReport
		})
	case event.TypeLinkClicked:
		// Click events are webhook-only; chat fanout at click volume would
		// drown every channel.
		r.fanoutWebhooks(ctx, ev)
		return nil
	default:
		r.metrics.Dropped.Inc()
		r.logger.Warn("dropping unroutable event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
}

// Dispatch records a pending log row and enqueues one job on the channel.
// Returns the log row id. This is the single path every delivery takes, so
// resends and test sends behave exactly like routed events.
func (r *Router) Dispatch(ctx context.Context, channel, recipient, subject string, payload any, metadata map[string]any) (string, error) {
	q, ok := r.queues[channel]
	if !ok {
		return "", fmt.Errorf("unknown channel %q", channel)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", channel, err)
	}

	// Keep the job payload on the log row so a resend can replay it.
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["payload"] = json.RawMessage(raw)

	logID, err := r.logs.CreatePending(ctx, channel, recipient, subject, meta)
	if err != nil {
		return "", fmt.Errorf("recording pending %s delivery: %w", channel, err)
	}

	job := queue.Job{
		ID:          uuid.NewString(),
		Channel:     channel,
		Attempt:     1,
		MaxAttempts: r.maxAttempts,
		LogID:       logID,
		EnqueuedAt:  time.Now(),
		Payload:     raw,
	}
	if err := q.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueueing %s job: %w", channel, err)
	}
	return logID, nil
}

// routeExplicit handles notification.send: a producer asking for one
// delivery on one named channel.
func (r *Router) routeExplicit(ctx context.Context, ev event.Envelope) error {
	channel := ev.String("channel")
	to := ev.String("to", "recipient")
	data, _ := ev.Data["data"].(map[string]any)
	meta := map[string]any{"event_id": ev.ID}

	switch channel {
	case queue.ChannelEmail:
		if !strings.Contains(to, "@") {
			r.metrics.Dropped.Inc()
			r.logger.Warn("dropping email send with invalid destination", "event_id", ev.ID, "to", to)
			return nil
		}
		tpl := ev.String("template")
		if tpl != "" {
			meta["template"] = tpl
		}
		_, err := r.Dispatch(ctx, channel, to, ev.String("subject"), notifier.EmailJob{
			To:       to,
			Name:     ev.String("name"),
			Subject:  ev.String("subject"),
			Template: tpl,
			Data:     data,
		}, meta)
		return err
	case queue.ChannelSMS:
		if !notifier.ValidDestination(to) {
			r.metrics.Dropped.Inc()
			r.logger.Warn("dropping sms send with invalid destination", "event_id", ev.ID, "to", to)
			return nil
		}
		_, err := r.Dispatch(ctx, channel, to, "", notifier.SMSJob{
			To:       to,
			Body:     ev.String("body", "message"),
			Provider: ev.String("provider"),
		}, meta)
		return err
	case queue.ChannelSlack, queue.ChannelTeams:
		teamID := ev.String("team_id", "teamId")
		job := notifier.ChatJob{
			TeamID:     teamID,
			WebhookURL: ev.String("webhook_url", "webhookUrl"),
			Channel:    ev.String("slack_channel", "slackChannel"),
			Card:       ev.String("card"),
			Data:       data,
		}
		if job.Card == "" {
			job.Card = notifier.CardAlert
		}
		_, err := r.Dispatch(ctx, channel, teamID, "", job, meta)
		return err
	default:
		r.metrics.Dropped.Inc()
		r.logger.Warn("dropping send request for unknown channel", "event_id", ev.ID, "channel", channel)
		return nil
	}
}

// routeDomain is the common fanout for team-scoped domain events: webhook
// endpoints plus chat channels gated by a team settings flag.
func (r *Router) routeDomain(ctx context.Context, ev event.Envelope, card string, wants func(*storage.TeamChannelSettings) bool) error {
	r.fanoutWebhooks(ctx, ev)

	settings := r.teamSettings(ctx, ev)
	if settings == nil || !wants(settings) {
		return nil
	}
	r.fanoutChat(ctx, ev, settings, card)
	return nil
}

func (r *Router) routeMilestone(ctx context.Context, ev event.Envelope) error {
	r.fanoutWebhooks(ctx, ev)

	settings := r.teamSettings(ctx, ev)
	if settings == nil || !settings.NotifyMilestone {
		return nil
	}
	if m, ok := numeric(ev.Data["milestone"]); ok && m < float64(settings.MilestoneThreshold) {
		return nil
	}
	r.fanoutChat(ctx, ev, settings, notifier.CardMilestone)
	return nil
}

// routeGoal notifies the campaign owner by email and the team's chat
// channels when a campaign reaches its goal.
func (r *Router) routeGoal(ctx context.Context, ev event.Envelope) error {
	r.fanoutWebhooks(ctx, ev)

	r.emailOwner(ctx, ev)

	settings := r.teamSettings(ctx, ev)
	if settings == nil || !settings.NotifyGoal {
		return nil
	}
	r.fanoutChat(ctx, ev, settings, notifier.CardAlert)
	return nil
}

// emailOwner resolves the owning user via the directory and sends the
// goal-reached email. Events may carry the address directly; the directory
// lookup is the fallback for id-only producers.
func (r *Router) emailOwner(ctx context.Context, ev event.Envelope) {
	to := ev.String("email")
	name := ev.String("name")
	if to == "" {
		userID := ev.String("user_id", "userId")
		if userID == "" {
			r.logger.Warn("goal event has no owner contact", "event_id", ev.ID)
			return
		}
		u, err := r.directory.User(ctx, userID)
		if err != nil {
			r.logger.Warn("owner lookup failed, skipping goal email",
				"event_id", ev.ID, "user_id", userID, "error", err)
			return
		}
		to, name = u.Email, u.Name
	}

	data := make(map[string]any, len(ev.Data)+1)
	for k, v := range ev.Data {
		data[k] = v
	}
	if name != "" {
		data["name"] = name
	}

	if _, err := r.Dispatch(ctx, queue.ChannelEmail, to, "", notifier.EmailJob{
		To:       to,
		Name:     name,
		Template: "goal-reached",
		Data:     data,
	}, map[string]any{"event_id": ev.ID, "template": "goal-reached"}); err != nil {
		r.logger.Error("enqueueing goal email", "event_id", ev.ID, "error", err)
	}
}

// fanoutWebhooks delivers the event to every matching webhook endpoint.
// Endpoints are team-owned, so an event without a team id is malformed:
// fanning it out anyway would post one tenant's payload to every other
// tenant's URLs.
func (r *Router) fanoutWebhooks(ctx context.Context, ev event.Envelope) {
	teamID := ev.String("team_id", "teamId")
	if teamID == "" {
		r.metrics.Dropped.Inc()
		r.logger.Warn("skipping webhook fanout, event has no team_id", "event_id", ev.ID, "type", ev.Type)
		return
	}
	endpoints, err := r.endpoints.ListForEvent(ctx, teamID, ev.Type)
	if err != nil {
		r.logger.Error("listing webhook endpoints", "event_id", ev.ID, "type", ev.Type, "error", err)
		return
	}

	payload := webhook.Payload{Event: ev.Type, Timestamp: ev.Timestamp, Data: ev.Data}
	for _, ep := range endpoints {
		if err := r.dispatcher.Send(ctx, ep, payload); err != nil {
			r.logger.Error("webhook dispatch failed",
				"event_id", ev.ID, "endpoint_id", ep.ID, "error", err)
			continue
		}
		if err := r.endpoints.MarkTriggered(ctx, ep.ID); err != nil {
			r.logger.Error("marking endpoint triggered", "endpoint_id", ep.ID, "error", err)
		}
	}
}

// fanoutChat enqueues slack and teams jobs for whichever installations the
// team has.
func (r *Router) fanoutChat(ctx context.Context, ev event.Envelope, settings *storage.TeamChannelSettings, card string) {
	if settings.SlackWebhookURL != "" || settings.SlackChannel != "" {
		if _, err := r.Dispatch(ctx, queue.ChannelSlack, settings.TeamID, "", notifier.ChatJob{
			TeamID:     settings.TeamID,
			WebhookURL: settings.SlackWebhookURL,
			Channel:    settings.SlackChannel,
			Card:       card,
			Data:       ev.Data,
		}, map[string]any{"event_id": ev.ID, "card": card}); err != nil {
			r.logger.Error("enqueueing slack job", "event_id", ev.ID, "team_id", settings.TeamID, "error", err)
		}
	}

	if settings.TeamsWebhookURL != "" {
		if _, err := r.Dispatch(ctx, queue.ChannelTeams, settings.TeamID, "", notifier.ChatJob{
			TeamID:     settings.TeamID,
			WebhookURL: settings.TeamsWebhookURL,
			Card:       card,
			Data:       ev.Data,
		}, map[string]any{"event_id": ev.ID, "card": card}); err != nil {
			r.logger.Error("enqueueing teams job", "event_id", ev.ID, "team_id", settings.TeamID, "error", err)
		}
	}
}

func (r *Router) teamSettings(ctx context.Context, ev event.Envelope) *storage.TeamChannelSettings {
	teamID := ev.String("team_id", "teamId")
	if teamID == "" {
		return nil
	}
	settings, err := r.teams.Get(ctx, teamID)
	if err != nil {
		r.logger.Error("loading team settings", "event_id", ev.ID, "team_id", teamID, "error", err)
		return nil
	}
	return settings
}

// numeric coerces the loosely typed values producers put in event data.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
