// Package service implements the operations behind the HTTP API: resending
// logged notifications, test sends, delivery listings, and configuration
// reload/status.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/awd2211/lnk.day-sub003/internal/notifier"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/router"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

// ErrNotResendable marks a log row that cannot be replayed: either it is
// still in flight or it predates payload capture.
var ErrNotResendable = errors.New("notification is not resendable")

// NotificationService exposes log inspection, resend, and test sends.
type NotificationService struct {
	logs       storage.NotificationLogStore
	endpoints  storage.WebhookEndpointStore
	router     *router.Router
	dispatcher *webhook.Dispatcher
	logger     *slog.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(logs storage.NotificationLogStore, endpoints storage.WebhookEndpointStore,
	r *router.Router, dispatcher *webhook.Dispatcher, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		logs:       logs,
		endpoints:  endpoints,
		router:     r,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ListLog returns the most recent log rows.
func (s *NotificationService) ListLog(ctx context.Context, limit int) ([]storage.NotificationLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.logs.List(ctx, limit)
}

// Get returns one log row.
func (s *NotificationService) Get(ctx context.Context, id string) (*storage.NotificationLogEntry, error) {
	return s.logs.Get(ctx, id)
}

// Resend replays a settled notification. It creates a NEW log row whose
// metadata carries resend_of pointing at the original; the original row is
// never touched. The replay goes through the normal dispatch path, so it
// retries and settles like any other delivery.
func (s *NotificationService) Resend(ctx context.Context, id string) (string, error) {
	row, err := s.logs.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if row.Status == storage.LogStatusPending {
		return "", fmt.Errorf("%w: delivery %s is still pending", ErrNotResendable, id)
	}

	payload, ok := row.Metadata["payload"]
	if !ok {
		return "", fmt.Errorf("%w: no payload recorded for %s", ErrNotResendable, id)
	}

	meta := map[string]any{"resend_of": id}
	for _, k := range []string{"template", "endpoint_id", "event"} {
		if v, ok := row.Metadata[k]; ok {
			meta[k] = v
		}
	}

	newID, err := s.router.Dispatch(ctx, row.Type, row.Recipient, row.Subject, payload, meta)
	if err != nil {
		return "", fmt.Errorf("resending %s: %w", id, err)
	}
	s.logger.Info("notification resent", "original_id", id, "new_id", newID, "channel", row.Type)
	return newID, nil
}

// Test sends a synthetic notification on the given channel so an operator
// can verify provider configuration end to end.
func (s *NotificationService) Test(ctx context.Context, channel, target string) (string, error) {
	meta := map[string]any{"test": true}

	switch channel {
	case queue.ChannelEmail:
		if !strings.Contains(target, "@") {
			return "", fmt.Errorf("%q is not an email address", target)
		}
		meta["template"] = "delivery-test"
		return s.router.Dispatch(ctx, channel, target, "", notifier.EmailJob{
			To:       target,
			Template: "delivery-test",
			Data:     map[string]any{"channel": channel, "sent_at": time.Now().UTC().Format(time.RFC3339)},
		}, meta)
	case queue.ChannelSMS:
		if !notifier.ValidDestination(target) {
			return "", fmt.Errorf("%q is not an E.164 number", target)
		}
		return s.router.Dispatch(ctx, channel, target, "", notifier.SMSJob{
			To:   target,
			Body: "lnk.day test notification",
		}, meta)
	case queue.ChannelSlack, queue.ChannelTeams:
		if target == "" {
			return "", fmt.Errorf("a webhook URL target is required for %s", channel)
		}
		return s.router.Dispatch(ctx, channel, target, "", notifier.ChatJob{
			WebhookURL: target,
			Card:       notifier.CardAlert,
			Data:       map[string]any{"message": "lnk.day test notification", "severity": "info"},
		}, meta)
	default:
		return "", fmt.Errorf("unknown channel %q", channel)
	}
}

// EndpointDeliveries returns the recent delivery log for one webhook endpoint.
func (s *NotificationService) EndpointDeliveries(ctx context.Context, endpointID string, limit int) ([]storage.NotificationLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if _, err := s.endpoints.Get(ctx, endpointID); err != nil {
		return nil, err
	}
	return s.logs.ListByEndpoint(ctx, endpointID, limit)
}

// TestEndpoint sends a synthetic signed delivery to one endpoint, bypassing
// its subscriptions and filters.
func (s *NotificationService) TestEndpoint(ctx context.Context, endpointID string) error {
	ep, err := s.endpoints.Get(ctx, endpointID)
	if err != nil {
		return err
	}
	if !ep.Enabled || ep.Status == webhook.StatusDisabled {
		return fmt.Errorf("endpoint %s is disabled", endpointID)
	}

	return s.dispatcher.Send(ctx, ep, webhook.Payload{
		Event:     webhook.TestEvent,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"endpoint_id": endpointID, "message": "test delivery"},
	})
}

// EnableEndpoint re-enables a webhook endpoint. This is the only way out of
// the disabled state; it resets the failure streak.
func (s *NotificationService) EnableEndpoint(ctx context.Context, endpointID string) error {
	if _, err := s.endpoints.Get(ctx, endpointID); err != nil {
		return err
	}
	if err := s.endpoints.SetEnabled(ctx, endpointID, true); err != nil {
		return err
	}
	s.logger.Info("webhook endpoint re-enabled", "endpoint_id", endpointID)
	return nil
}
