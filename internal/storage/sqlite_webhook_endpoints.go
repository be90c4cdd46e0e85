package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awd2211/lnk.day-sub003/internal/webhook"
)

// SQLiteWebhookEndpointStore implements WebhookEndpointStore backed by SQLite.
type SQLiteWebhookEndpointStore struct {
	db *sql.DB
}

// NewSQLiteWebhookEndpointStore returns a new SQLiteWebhookEndpointStore.
func NewSQLiteWebhookEndpointStore(db *sql.DB) *SQLiteWebhookEndpointStore {
	return &SQLiteWebhookEndpointStore{db: db}
}

const selectEndpoint = `
	SELECT id, team_id, user_id, url, secret, subscribed_events, filters, headers,
	       status, enabled, success_count, failure_count, consecutive_failures,
	       last_triggered_at, last_success_at, last_failure_at, last_error_message
	FROM webhook_endpoints`

// Get returns one endpoint by id.
func (s *SQLiteWebhookEndpointStore) Get(ctx context.Context, id string) (*webhook.Endpoint, error) {
	row := s.db.QueryRowContext(ctx, selectEndpoint+" WHERE id = ?", id)
	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying endpoint %s: %w", id, err)
	}
	return ep, nil
}

// ListForEvent returns deliverable endpoints subscribed to eventType within
// the team. An empty teamID matches every team and is reserved for
// administrative tooling; delivery paths always pass a team id.
func (s *SQLiteWebhookEndpointStore) ListForEvent(ctx context.Context, teamID, eventType string) ([]*webhook.Endpoint, error) {
	query := selectEndpoint + `
		WHERE enabled = 1 AND status != 'disabled'
		AND EXISTS (SELECT 1 FROM json_each(subscribed_events) WHERE json_each.value = ?)`
	args := []any{eventType}
	if teamID != "" {
		query += " AND team_id = ?"
		args = append(args, teamID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints for event %q: %w", eventType, err)
	}
	defer rows.Close()

	var endpoints []*webhook.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint row: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoint rows: %w", err)
	}
	return endpoints, nil
}

// RecordSuccess applies a terminal delivery success.
func (s *SQLiteWebhookEndpointStore) RecordSuccess(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_endpoints SET
			success_count = success_count + 1,
			consecutive_failures = 0,
			last_success_at = ?,
			status = CASE WHEN status = 'disabled' THEN status ELSE 'active' END,
			updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording success for endpoint %s: %w", id, err)
	}
	return nil
}

// RecordFailure applies a terminal delivery failure. The counter is read
// immediately before the status is computed and written in one transaction,
// so the enable/disable transition stays monotonic under concurrent workers.
func (s *SQLiteWebhookEndpointStore) RecordFailure(ctx context.Context, id, errorMessage string, t webhook.Thresholds) (webhook.Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin failure update for endpoint %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var current webhook.Status
	var failures int
	err = tx.QueryRowContext(ctx,
		"SELECT status, consecutive_failures FROM webhook_endpoints WHERE id = ?", id,
	).Scan(&current, &failures)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading endpoint %s: %w", id, err)
	}

	failures++
	next := webhook.NextStatus(current, failures, t)

	_, err = tx.ExecContext(ctx, `
		UPDATE webhook_endpoints SET
			failure_count = failure_count + 1,
			consecutive_failures = ?,
			last_failure_at = ?,
			last_error_message = ?,
			status = ?,
			updated_at = ?
		WHERE id = ?`,
		failures, time.Now().UTC(), errorMessage, string(next), time.Now().UTC(), id,
	)
	if err != nil {
		return "", fmt.Errorf("recording failure for endpoint %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit failure update for endpoint %s: %w", id, err)
	}
	return next, nil
}

// MarkTriggered stamps lastTriggeredAt.
func (s *SQLiteWebhookEndpointStore) MarkTriggered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE webhook_endpoints SET last_triggered_at = ?, updated_at = ? WHERE id = ?",
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking endpoint %s triggered: %w", id, err)
	}
	return nil
}

// SetEnabled toggles the endpoint. Enabling resets the failure streak and
// restores ACTIVE; disabling moves it to DISABLED.
func (s *SQLiteWebhookEndpointStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	status := webhook.StatusDisabled
	if enabled {
		status = webhook.StatusActive
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_endpoints SET
			enabled = ?,
			status = ?,
			consecutive_failures = CASE WHEN ? THEN 0 ELSE consecutive_failures END,
			updated_at = ?
		WHERE id = ?`,
		enabled, string(status), enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating endpoint %s enabled state: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of endpoint %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}
	return nil
}

// Create inserts an endpoint row.
func (s *SQLiteWebhookEndpointStore) Create(ctx context.Context, ep *webhook.Endpoint) error {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.Status == "" {
		ep.Status = webhook.StatusActive
	}

	events, err := json.Marshal(ep.SubscribedEvents)
	if err != nil {
		return fmt.Errorf("encoding subscribed events: %w", err)
	}
	headers, err := json.Marshal(ep.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}
	var filters any
	if ep.Filters != nil {
		raw, err := json.Marshal(ep.Filters)
		if err != nil {
			return fmt.Errorf("encoding filters: %w", err)
		}
		filters = string(raw)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhook_endpoints
			(id, team_id, user_id, url, secret, subscribed_events, filters, headers,
			 status, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.TeamID, ep.UserID, ep.URL, ep.Secret, string(events), filters,
		string(headers), string(ep.Status), ep.Enabled, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting endpoint %s: %w", ep.ID, err)
	}
	return nil
}

func scanEndpoint(r rowScanner) (*webhook.Endpoint, error) {
	var ep webhook.Endpoint
	var events, headers string
	var filters sql.NullString
	var triggered, success, failure sql.NullTime
	err := r.Scan(&ep.ID, &ep.TeamID, &ep.UserID, &ep.URL, &ep.Secret, &events,
		&filters, &headers, &ep.Status, &ep.Enabled, &ep.SuccessCount,
		&ep.FailureCount, &ep.ConsecutiveFailures, &triggered, &success,
		&failure, &ep.LastErrorMessage)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(events), &ep.SubscribedEvents); err != nil {
		return nil, fmt.Errorf("decoding subscribed events for %s: %w", ep.ID, err)
	}
	if err := json.Unmarshal([]byte(headers), &ep.Headers); err != nil {
		return nil, fmt.Errorf("decoding headers for %s: %w", ep.ID, err)
	}
	if filters.Valid && filters.String != "" {
		ep.Filters = &webhook.Filters{}
		if err := json.Unmarshal([]byte(filters.String), ep.Filters); err != nil {
			return nil, fmt.Errorf("decoding filters for %s: %w", ep.ID, err)
		}
	}
	if triggered.Valid {
		ep.LastTriggeredAt = &triggered.Time
	}
	if success.Valid {
		ep.LastSuccessAt = &success.Time
	}
	if failure.Valid {
		ep.LastFailureAt = &failure.Time
	}
	return &ep, nil
}
