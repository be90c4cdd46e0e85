package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
	"github.com/awd2211/lnk.day-sub003/internal/worker"
)

type stubEndpointStore struct {
	successes []string
	failures  []string
	failMsg   string
	nextState webhook.Status
}

func (s *stubEndpointStore) Get(context.Context, string) (*webhook.Endpoint, error) {
	return nil, errors.New("not implemented")
}

func (s *stubEndpointStore) ListForEvent(context.Context, string, string) ([]*webhook.Endpoint, error) {
	return nil, nil
}

func (s *stubEndpointStore) RecordSuccess(_ context.Context, id string) error {
	s.successes = append(s.successes, id)
	return nil
}

func (s *stubEndpointStore) RecordFailure(_ context.Context, id, msg string, _ webhook.Thresholds) (webhook.Status, error) {
	s.failures = append(s.failures, id)
	s.failMsg = msg
	return s.nextState, nil
}

func (s *stubEndpointStore) MarkTriggered(context.Context, string) error { return nil }

func (s *stubEndpointStore) SetEnabled(context.Context, string, bool) error { return nil }

func (s *stubEndpointStore) Create(context.Context, *webhook.Endpoint) error { return nil }

func webhookJob(t *testing.T, endpointID string) queue.Job {
	t.Helper()
	raw, err := json.Marshal(webhook.DeliveryJob{EndpointID: endpointID, URL: "https://example.com/hook"})
	require.NoError(t, err)
	return queue.Job{ID: "j1", Channel: queue.ChannelWebhook, Payload: raw}
}

func TestWebhookHealthHookRecordsSuccess(t *testing.T) {
	store := &stubEndpointStore{}
	hook := worker.WebhookHealthHook(store, webhook.DefaultThresholds, discardLogger())

	hook(context.Background(), webhookJob(t, "ep-1"), nil)

	assert.Equal(t, []string{"ep-1"}, store.successes)
	assert.Empty(t, store.failures)
}

func TestWebhookHealthHookRecordsFailure(t *testing.T) {
	store := &stubEndpointStore{nextState: webhook.StatusFailing}
	hook := worker.WebhookHealthHook(store, webhook.DefaultThresholds, discardLogger())

	hook(context.Background(), webhookJob(t, "ep-2"), errors.New("endpoint returned status 500"))

	assert.Equal(t, []string{"ep-2"}, store.failures)
	assert.Contains(t, store.failMsg, "500")
	assert.Empty(t, store.successes)
}
