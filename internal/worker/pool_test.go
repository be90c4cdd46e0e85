package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awd2211/lnk.day-sub003/internal/metrics"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/worker"
)

type stubNotifier struct {
	name string

	mu       sync.Mutex
	calls    int
	failFor  int // fail the first N attempts
	lastErr  error
	delivery chan queue.Job
}

func newStubNotifier(name string, failFor int) *stubNotifier {
	return &stubNotifier{name: name, failFor: failFor, delivery: make(chan queue.Job, 16)}
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Deliver(_ context.Context, job queue.Job) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failFor
	s.mu.Unlock()
	s.delivery <- job
	if fail {
		s.lastErr = errors.New("provider unavailable")
		return s.lastErr
	}
	return nil
}

func (s *stubNotifier) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubLogStore struct {
	mu     sync.Mutex
	sent   []string
	failed map[string]string
}

func newStubLogStore() *stubLogStore {
	return &stubLogStore{failed: map[string]string{}}
}

func (s *stubLogStore) CreatePending(context.Context, string, string, string, map[string]any) (string, error) {
	return "log-1", nil
}

func (s *stubLogStore) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, id)
	return nil
}

func (s *stubLogStore) MarkFailed(_ context.Context, id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = msg
	return nil
}

func (s *stubLogStore) Get(context.Context, string) (*storage.NotificationLogEntry, error) {
	return nil, storage.ErrNotFound
}

func (s *stubLogStore) List(context.Context, int) ([]storage.NotificationLogEntry, error) {
	return nil, nil
}

func (s *stubLogStore) ListByEndpoint(context.Context, string, int) ([]storage.NotificationLogEntry, error) {
	return nil, nil
}

func (s *stubLogStore) sentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *stubLogStore) failedMsg(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.failed[id]
	return msg, ok
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPoolDeliversAndMarksSent(t *testing.T) {
	q := queue.NewMemoryQueue(8)
	defer q.Close()
	n := newStubNotifier("email", 0)
	logs := newStubLogStore()

	var hookErr error
	var hookCalled bool
	var hookMu sync.Mutex
	hook := func(_ context.Context, _ queue.Job, err error) {
		hookMu.Lock()
		hookCalled, hookErr = true, err
		hookMu.Unlock()
	}

	pool := worker.NewPool(q, n, logs, testMetrics(), 2, hook, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { pool.Run(ctx); close(done) }()

	require.NoError(t, q.Enqueue(ctx, queue.Job{
		ID: "j1", Channel: "email", Attempt: 1, MaxAttempts: 4, LogID: "log-1",
		Payload: []byte(`{}`),
	}))

	waitFor(t, func() bool { return q.Acked() == 1 }, "job never acked")
	cancel()
	<-done

	assert.Equal(t, 1, n.attempts())
	assert.Equal(t, []string{"log-1"}, logs.sentIDs())
	hookMu.Lock()
	defer hookMu.Unlock()
	assert.True(t, hookCalled)
	assert.NoError(t, hookErr)
}

func TestPoolRetriesWithBackoffThenSucceeds(t *testing.T) {
	q := queue.NewMemoryQueue(8)
	defer q.Close()
	n := newStubNotifier("sms", 1)
	logs := newStubLogStore()

	pool := worker.NewPool(q, n, logs, testMetrics(), 1, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { pool.Run(ctx); close(done) }()

	require.NoError(t, q.Enqueue(ctx, queue.Job{
		ID: "j1", Channel: "sms", Attempt: 1, MaxAttempts: 4, LogID: "log-1",
		Payload: []byte(`{}`),
	}))

	// First attempt fails, the retry lands after ~1s of backoff.
	waitFor(t, func() bool { return len(logs.sentIDs()) == 1 }, "retry never succeeded")
	cancel()
	<-done

	assert.Equal(t, 2, n.attempts())
	first := <-n.delivery
	second := <-n.delivery
	assert.Equal(t, 1, first.Attempt)
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, 2, q.Acked())
}

func TestPoolExhaustsAttemptsAndMarksFailed(t *testing.T) {
	q := queue.NewMemoryQueue(8)
	defer q.Close()
	n := newStubNotifier("email", 100)
	logs := newStubLogStore()

	var hookMu sync.Mutex
	var terminalErr error
	hook := func(_ context.Context, _ queue.Job, err error) {
		hookMu.Lock()
		terminalErr = err
		hookMu.Unlock()
	}

	pool := worker.NewPool(q, n, logs, testMetrics(), 1, hook, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { pool.Run(ctx); close(done) }()

	// Last permitted attempt: failure settles immediately as permanent.
	require.NoError(t, q.Enqueue(ctx, queue.Job{
		ID: "j1", Channel: "email", Attempt: 4, MaxAttempts: 4, LogID: "log-9",
		Payload: []byte(`{}`),
	}))

	waitFor(t, func() bool {
		_, ok := logs.failedMsg("log-9")
		return ok
	}, "job never marked failed")
	cancel()
	<-done

	msg, _ := logs.failedMsg("log-9")
	assert.Contains(t, msg, "provider unavailable")
	assert.Empty(t, logs.sentIDs())
	hookMu.Lock()
	defer hookMu.Unlock()
	assert.Error(t, terminalErr)
	assert.Equal(t, 1, q.Acked())
}
