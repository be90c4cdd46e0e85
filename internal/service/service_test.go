package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/directory"
	"github.com/awd2211/lnk.day-sub003/internal/metrics"
	"github.com/awd2211/lnk.day-sub003/internal/notifier"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/router"
	"github.com/awd2211/lnk.day-sub003/internal/service"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

type memLogStore struct {
	rows  map[string]*storage.NotificationLogEntry
	order []string
	seq   int
}

func newMemLogStore() *memLogStore {
	return &memLogStore{rows: map[string]*storage.NotificationLogEntry{}}
}

func (s *memLogStore) CreatePending(_ context.Context, channel, recipient, subject string, metadata map[string]any) (string, error) {
	s.seq++
	id := fmt.Sprintf("log-%d", s.seq)
	// Round-trip the metadata through JSON the way the SQLite store does, so
	// payloads come back as decoded values rather than RawMessage.
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", err
	}
	s.rows[id] = &storage.NotificationLogEntry{
		ID: id, Type: channel, Recipient: recipient, Subject: subject,
		Status: storage.LogStatusPending, Metadata: meta,
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *memLogStore) MarkSent(_ context.Context, id string) error {
	s.rows[id].Status = storage.LogStatusSent
	return nil
}

func (s *memLogStore) MarkFailed(_ context.Context, id, msg string) error {
	s.rows[id].Status = storage.LogStatusFailed
	s.rows[id].ErrorMessage = msg
	return nil
}

func (s *memLogStore) Get(_ context.Context, id string) (*storage.NotificationLogEntry, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return row, nil
}

func (s *memLogStore) List(_ context.Context, limit int) ([]storage.NotificationLogEntry, error) {
	var out []storage.NotificationLogEntry
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.rows[s.order[i]])
	}
	return out, nil
}

func (s *memLogStore) ListByEndpoint(_ context.Context, endpointID string, limit int) ([]storage.NotificationLogEntry, error) {
	var out []storage.NotificationLogEntry
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		row := s.rows[s.order[i]]
		if row.Metadata["endpoint_id"] == endpointID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type memEndpointStore struct {
	endpoints map[string]*webhook.Endpoint
	enabled   []string
}

func newMemEndpointStore() *memEndpointStore {
	return &memEndpointStore{endpoints: map[string]*webhook.Endpoint{}}
}

func (s *memEndpointStore) Get(_ context.Context, id string) (*webhook.Endpoint, error) {
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return ep, nil
}

func (s *memEndpointStore) ListForEvent(context.Context, string, string) ([]*webhook.Endpoint, error) {
	return nil, nil
}

func (s *memEndpointStore) RecordSuccess(context.Context, string) error { return nil }

func (s *memEndpointStore) RecordFailure(context.Context, string, string, webhook.Thresholds) (webhook.Status, error) {
	return webhook.StatusActive, nil
}

func (s *memEndpointStore) MarkTriggered(context.Context, string) error { return nil }

func (s *memEndpointStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	if enabled {
		s.enabled = append(s.enabled, id)
		s.endpoints[id].Enabled = true
		s.endpoints[id].Status = webhook.StatusActive
		s.endpoints[id].ConsecutiveFailures = 0
	}
	return nil
}

func (s *memEndpointStore) Create(_ context.Context, ep *webhook.Endpoint) error {
	s.endpoints[ep.ID] = ep
	return nil
}

type nopTeamStore struct{}

func (nopTeamStore) Get(context.Context, string) (*storage.TeamChannelSettings, error) {
	return nil, nil
}

func (nopTeamStore) ListWeeklyReportTeams(context.Context) ([]string, error) { return nil, nil }

func (nopTeamStore) Put(context.Context, *storage.TeamChannelSettings) error { return nil }

type fixture struct {
	svc       *service.NotificationService
	logs      *memLogStore
	endpoints *memEndpointStore
	queues    router.Queues
	router    *router.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	logs := newMemLogStore()
	endpoints := newMemEndpointStore()
	m := metrics.New(prometheus.NewRegistry())

	queues := router.Queues{}
	for _, ch := range queue.Channels {
		q := queue.NewMemoryQueue(16)
		t.Cleanup(q.Close)
		queues[ch] = q
	}

	dispatcher := webhook.NewDispatcher(queues[queue.ChannelWebhook], logs, 4, logger)
	r := router.New(queues, logs, endpoints, nopTeamStore{}, dispatcher,
		directory.NewClient("", ""), 4, m, logger)

	return &fixture{
		svc:       service.NewNotificationService(logs, endpoints, r, dispatcher, logger),
		logs:      logs,
		endpoints: endpoints,
		queues:    queues,
		router:    r,
	}
}

func dequeue(t *testing.T, q queue.Queue) queue.Job {
	t.Helper()
	d, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	return d.Job
}

func TestResendCreatesNewRowAndReplaysPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origID, err := f.router.Dispatch(ctx, queue.ChannelEmail, "ada@example.com", "Welcome",
		notifier.EmailJob{To: "ada@example.com", Template: "link-created", Data: map[string]any{"title": "Docs"}},
		map[string]any{"template": "link-created"})
	require.NoError(t, err)
	origJob := dequeue(t, f.queues[queue.ChannelEmail])
	require.NoError(t, f.logs.MarkFailed(ctx, origID, "provider unavailable"))

	newID, err := f.svc.Resend(ctx, origID)
	require.NoError(t, err)
	require.NotEqual(t, origID, newID)

	// The original row is untouched.
	orig, err := f.logs.Get(ctx, origID)
	require.NoError(t, err)
	assert.Equal(t, storage.LogStatusFailed, orig.Status)
	assert.NotContains(t, orig.Metadata, "resend_of")

	replay, err := f.logs.Get(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, storage.LogStatusPending, replay.Status)
	assert.Equal(t, origID, replay.Metadata["resend_of"])
	assert.Equal(t, "ada@example.com", replay.Recipient)

	newJob := dequeue(t, f.queues[queue.ChannelEmail])
	var origEmail, replayEmail notifier.EmailJob
	require.NoError(t, json.Unmarshal(origJob.Payload, &origEmail))
	require.NoError(t, json.Unmarshal(newJob.Payload, &replayEmail))
	assert.Equal(t, origEmail, replayEmail)
}

func TestResendRejectsPendingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.router.Dispatch(ctx, queue.ChannelEmail, "ada@example.com", "",
		notifier.EmailJob{To: "ada@example.com", Template: "delivery-test"}, nil)
	require.NoError(t, err)

	_, err = f.svc.Resend(ctx, id)
	require.ErrorIs(t, err, service.ErrNotResendable)
}

func TestResendUnknownRow(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resend(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTestSendPerChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Test(ctx, queue.ChannelEmail, "ops@example.com")
	require.NoError(t, err)
	job := dequeue(t, f.queues[queue.ChannelEmail])
	var e notifier.EmailJob
	require.NoError(t, json.Unmarshal(job.Payload, &e))
	assert.Equal(t, "delivery-test", e.Template)

	_, err = f.svc.Test(ctx, queue.ChannelSMS, "+14155550100")
	require.NoError(t, err)
	dequeue(t, f.queues[queue.ChannelSMS])

	_, err = f.svc.Test(ctx, queue.ChannelSlack, "https://hooks.slack.com/services/T/B/x")
	require.NoError(t, err)
	dequeue(t, f.queues[queue.ChannelSlack])
}

func TestTestSendRejectsBadTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Test(ctx, queue.ChannelEmail, "not-an-address")
	require.Error(t, err)

	_, err = f.svc.Test(ctx, queue.ChannelSMS, "12345")
	require.Error(t, err)

	_, err = f.svc.Test(ctx, "carrier-pigeon", "coop 7")
	require.Error(t, err)
}

func TestEndpointTestBypassesSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.endpoints.Create(ctx, &webhook.Endpoint{
		ID: "ep-1", TeamID: "team-1", URL: "https://example.com/hook", Secret: "whsec_1",
		SubscribedEvents: []string{"link.created"},
		Status:           webhook.StatusActive, Enabled: true,
	}))

	require.NoError(t, f.svc.TestEndpoint(ctx, "ep-1"))

	job := dequeue(t, f.queues[queue.ChannelWebhook])
	var d webhook.DeliveryJob
	require.NoError(t, json.Unmarshal(job.Payload, &d))
	assert.Equal(t, webhook.TestEvent, d.Event)
	assert.True(t, webhook.Verify("whsec_1", d.Body, d.Headers["X-Webhook-Signature"]))
}

func TestEndpointTestRefusesDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.endpoints.Create(ctx, &webhook.Endpoint{
		ID: "ep-1", URL: "https://example.com/hook", Secret: "whsec_1",
		Status: webhook.StatusDisabled, Enabled: false,
	}))

	err := f.svc.TestEndpoint(ctx, "ep-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestEnableEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.endpoints.Create(ctx, &webhook.Endpoint{
		ID: "ep-1", URL: "https://example.com/hook",
		Status: webhook.StatusDisabled, Enabled: false,
	}))

	require.NoError(t, f.svc.EnableEndpoint(ctx, "ep-1"))
	assert.Equal(t, []string{"ep-1"}, f.endpoints.enabled)

	require.ErrorIs(t, f.svc.EnableEndpoint(ctx, "nope"), storage.ErrNotFound)
}

func TestEndpointDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.endpoints.Create(ctx, &webhook.Endpoint{
		ID: "ep-1", URL: "https://example.com/hook", Secret: "whsec_1",
		SubscribedEvents: []string{"link.created"},
		Status:           webhook.StatusActive, Enabled: true,
	}))
	require.NoError(t, f.svc.TestEndpoint(ctx, "ep-1"))

	rows, err := f.svc.EndpointDeliveries(ctx, "ep-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, queue.ChannelWebhook, rows[0].Type)

	_, err = f.svc.EndpointDeliveries(ctx, "nope", 10)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfigServiceStatusAndReload(t *testing.T) {
	store := config.NewProviderStore(&config.AppConfig{
		EmailProvider: "smtp",
		SMSProvider:   "twilio",
	})
	svc := service.NewConfigService(store)

	st := svc.Status()
	assert.Equal(t, int64(1), st.Version)
	assert.Equal(t, "smtp", st.EmailProvider)
	assert.Equal(t, "twilio", st.SMSProvider)

	// No configured service URL: reload is a no-op that keeps the snapshot.
	st2, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st.Version, st2.Version)
}
