package webhook_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

type stubRecorder struct {
	created []string
	err     error
}

func (s *stubRecorder) CreatePending(_ context.Context, channel, recipient, subject string, _ map[string]any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.created = append(s.created, channel+":"+recipient+":"+subject)
	return "log-1", nil
}

func testEndpoint() *webhook.Endpoint {
	return &webhook.Endpoint{
		ID:               "wh_1",
		TeamID:           "team_1",
		URL:              "https://example.com/hook",
		Secret:           "whsec_test",
		SubscribedEvents: []string{"link.created"},
		Enabled:          true,
		Status:           webhook.StatusActive,
	}
}

func newDispatcher(q queue.Queue, rec webhook.Recorder) *webhook.Dispatcher {
	return webhook.NewDispatcher(q, rec, 4, slog.New(slog.DiscardHandler))
}

func TestDispatcher_EnqueuesSignedJob(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	defer q.Close()
	rec := &stubRecorder{}
	d := newDispatcher(q, rec)
	ctx := context.Background()

	ep := testEndpoint()
	ep.Headers = map[string]string{"X-Custom": "yes"}
	payload := webhook.Payload{
		Event:     "link.created",
		Timestamp: time.Now(),
		Data:      map[string]any{"link_id": "lnk_1"},
	}

	require.NoError(t, d.Send(ctx, ep, payload))
	require.Len(t, rec.created, 1)

	delivery, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.ChannelWebhook, delivery.Job.Channel)
	assert.Equal(t, "log-1", delivery.Job.LogID)
	assert.Equal(t, 4, delivery.Job.MaxAttempts)

	var job webhook.DeliveryJob
	require.NoError(t, json.Unmarshal(delivery.Job.Payload, &job))
	assert.Equal(t, "wh_1", job.EndpointID)
	assert.Equal(t, "https://example.com/hook", job.URL)
	assert.Equal(t, "application/json", job.Headers["Content-Type"])
	assert.Equal(t, "wh_1", job.Headers["X-Webhook-ID"])
	assert.Equal(t, webhook.UserAgent, job.Headers["User-Agent"])
	assert.Equal(t, "yes", job.Headers["X-Custom"])

	// The signature in the header verifies against the job body.
	assert.True(t, webhook.Verify("whsec_test", job.Body, job.Headers["X-Webhook-Signature"]))
}

func TestDispatcher_SkipsUnsubscribedEvent(t *testing.T) {
	// Endpoint subscribed to link.created must not fire for link.clicked.
	q := queue.NewMemoryQueue(4)
	defer q.Close()
	rec := &stubRecorder{}
	d := newDispatcher(q, rec)

	err := d.Send(context.Background(), testEndpoint(), webhook.Payload{
		Event: "link.clicked",
		Data:  map[string]any{"link_id": "lnk_1"},
	})
	require.NoError(t, err)

	depth, _ := q.Depth(context.Background())
	assert.Zero(t, depth)
	assert.Empty(t, rec.created)
}

func TestDispatcher_SkipsDisabledEndpoint(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	defer q.Close()
	rec := &stubRecorder{}
	d := newDispatcher(q, rec)

	ep := testEndpoint()
	ep.Enabled = false
	require.NoError(t, d.Send(context.Background(), ep, webhook.Payload{Event: "link.created"}))

	ep = testEndpoint()
	ep.Status = webhook.StatusDisabled
	require.NoError(t, d.Send(context.Background(), ep, webhook.Payload{Event: "link.created"}))

	depth, _ := q.Depth(context.Background())
	assert.Zero(t, depth)
}

func TestDispatcher_SkipsFilterMismatch(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	defer q.Close()
	rec := &stubRecorder{}
	d := newDispatcher(q, rec)

	ep := testEndpoint()
	ep.Filters = &webhook.Filters{Threshold: &webhook.Threshold{Metric: "clicks", Operator: "gte", Value: 1000}}

	require.NoError(t, d.Send(context.Background(), ep, webhook.Payload{
		Event: "link.created",
		Data:  map[string]any{"clicks": float64(999)},
	}))
	depth, _ := q.Depth(context.Background())
	assert.Zero(t, depth)

	require.NoError(t, d.Send(context.Background(), ep, webhook.Payload{
		Event: "link.created",
		Data:  map[string]any{"clicks": float64(1000)},
	}))
	depth, _ = q.Depth(context.Background())
	assert.EqualValues(t, 1, depth)
}
