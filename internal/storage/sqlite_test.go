package storage_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/template"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.NewSQLiteDB(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNotificationLog_CreateAndSettle(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteNotificationLogStore(db)
	ctx := context.Background()

	id, err := store.CreatePending(ctx, "email", "ada@example.com", "Welcome", map[string]any{
		"template": "goal-reached",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.LogStatusPending, entry.Status)
	assert.Equal(t, "goal-reached", entry.TemplateName)
	assert.Nil(t, entry.DeliveredAt)

	require.NoError(t, store.MarkSent(ctx, id))
	entry, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.LogStatusSent, entry.Status)
	assert.NotNil(t, entry.DeliveredAt)
}

func TestNotificationLog_MarkFailed(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteNotificationLogStore(db)
	ctx := context.Background()

	id, err := store.CreatePending(ctx, "webhook", "https://example.com/hook", "link.created", nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(ctx, id, "connection timed out"))
	entry, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.LogStatusFailed, entry.Status)
	assert.Equal(t, "connection timed out", entry.ErrorMessage)
}

func TestNotificationLog_UnknownID(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteNotificationLogStore(db)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.MarkSent(ctx, "nope"), storage.ErrNotFound)
}

func TestNotificationLog_ListByEndpoint(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteNotificationLogStore(db)
	ctx := context.Background()

	_, err := store.CreatePending(ctx, "webhook", "https://a", "link.created", map[string]any{"endpoint_id": "wh_1"})
	require.NoError(t, err)
	_, err = store.CreatePending(ctx, "webhook", "https://b", "link.created", map[string]any{"endpoint_id": "wh_2"})
	require.NoError(t, err)

	entries, err := store.ListByEndpoint(ctx, "wh_1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://a", entries[0].Recipient)

	all, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWebhookEndpoints_CreateGetList(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteWebhookEndpointStore(db)
	ctx := context.Background()

	ep := &webhook.Endpoint{
		TeamID:           "team_1",
		URL:              "https://example.com/hook",
		Secret:           "whsec_1",
		SubscribedEvents: []string{"link.created", "link.milestone.reached"},
		Filters:          &webhook.Filters{Tags: []string{"launch"}},
		Headers:          map[string]string{"X-Env": "prod"},
		Enabled:          true,
	}
	require.NoError(t, store.Create(ctx, ep))
	require.NotEmpty(t, ep.ID)

	got, err := store.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusActive, got.Status)
	assert.Equal(t, []string{"link.created", "link.milestone.reached"}, got.SubscribedEvents)
	require.NotNil(t, got.Filters)
	assert.Equal(t, []string{"launch"}, got.Filters.Tags)
	assert.Equal(t, "prod", got.Headers["X-Env"])

	matches, err := store.ListForEvent(ctx, "", "link.created")
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	none, err := store.ListForEvent(ctx, "", "link.clicked")
	require.NoError(t, err)
	assert.Empty(t, none)

	scoped, err := store.ListForEvent(ctx, "other_team", "link.created")
	require.NoError(t, err)
	assert.Empty(t, scoped)
}

func TestWebhookEndpoints_FailureThresholds(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteWebhookEndpointStore(db)
	ctx := context.Background()
	thresholds := webhook.Thresholds{FailingAfter: 2, DisableAfter: 4}

	ep := &webhook.Endpoint{TeamID: "t", URL: "https://h", Secret: "s",
		SubscribedEvents: []string{"link.created"}, Enabled: true}
	require.NoError(t, store.Create(ctx, ep))

	// Three consecutive failures cross the FAILING threshold.
	var status webhook.Status
	var err error
	for i := 0; i < 3; i++ {
		status, err = store.RecordFailure(ctx, ep.ID, "timeout", thresholds)
		require.NoError(t, err)
	}
	assert.Equal(t, webhook.StatusFailing, status)

	got, err := store.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ConsecutiveFailures)
	assert.EqualValues(t, 3, got.FailureCount)
	assert.Equal(t, "timeout", got.LastErrorMessage)

	// A success resets the streak and restores ACTIVE.
	require.NoError(t, store.RecordSuccess(ctx, ep.ID))
	got, err = store.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusActive, got.Status)
	assert.Zero(t, got.ConsecutiveFailures)
	assert.EqualValues(t, 1, got.SuccessCount)

	// Enough failures disable the endpoint; success no longer revives it.
	for i := 0; i < 6; i++ {
		status, err = store.RecordFailure(ctx, ep.ID, "boom", thresholds)
		require.NoError(t, err)
	}
	assert.Equal(t, webhook.StatusDisabled, status)

	require.NoError(t, store.RecordSuccess(ctx, ep.ID))
	got, err = store.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusDisabled, got.Status)

	// Disabled endpoints are excluded from fanout.
	matches, err := store.ListForEvent(ctx, "", "link.created")
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Explicit re-enable is the only path back to ACTIVE.
	require.NoError(t, store.SetEnabled(ctx, ep.ID, true))
	got, err = store.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusActive, got.Status)
	assert.Zero(t, got.ConsecutiveFailures)
}

func TestTemplateStore_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteTemplateStore(db)
	ctx := context.Background()

	missing, err := store.GetByCode(ctx, "goal-reached")
	require.NoError(t, err)
	assert.Nil(t, missing)

	tpl := &template.Template{
		Code: "goal-reached", Type: "email", Subject: "Goal!",
		Content: "Total {{total}}", Variables: []string{"total"}, IsActive: true,
	}
	require.NoError(t, store.Put(ctx, tpl))

	got, err := store.GetByCode(ctx, "goal-reached")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Goal!", got.Subject)
	assert.Equal(t, []string{"total"}, got.Variables)
}

func TestTeamSettingsStore_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewSQLiteTeamSettingsStore(db)
	ctx := context.Background()

	none, err := store.Get(ctx, "team_1")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.Put(ctx, &storage.TeamChannelSettings{
		TeamID:             "team_1",
		SlackWebhookURL:    "https://hooks.slack.com/services/T/B/x",
		NotifyMilestone:    true,
		WeeklyReport:       true,
		MilestoneThreshold: 500,
	}))

	got, err := store.Get(ctx, "team_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.NotifyMilestone)
	assert.EqualValues(t, 500, got.MilestoneThreshold)

	teams, err := store.ListWeeklyReportTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"team_1"}, teams)
}
