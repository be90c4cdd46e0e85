package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteNotificationLogStore implements NotificationLogStore backed by SQLite.
type SQLiteNotificationLogStore struct {
	db *sql.DB
}

// NewSQLiteNotificationLogStore returns a new SQLiteNotificationLogStore.
func NewSQLiteNotificationLogStore(db *sql.DB) *SQLiteNotificationLogStore {
	return &SQLiteNotificationLogStore{db: db}
}

// CreatePending inserts a pending delivery record and returns its id.
func (s *SQLiteNotificationLogStore) CreatePending(ctx context.Context, channel, recipient, subject string, metadata map[string]any) (string, error) {
	id := uuid.NewString()
	if metadata == nil {
		metadata = map[string]any{}
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	templateName := ""
	if t, ok := metadata["template"].(string); ok {
		templateName = t
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_log (id, type, recipient, subject, status, template_name, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, channel, recipient, subject, LogStatusPending, templateName, string(rawMeta), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting notification log: %w", err)
	}
	return id, nil
}

// MarkSent settles the row as sent and stamps the delivery time.
func (s *SQLiteNotificationLogStore) MarkSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_log SET status = ?, delivered_at = ?, error_message = ''
		WHERE id = ?`,
		LogStatusSent, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s sent: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkFailed settles the row as failed with the error detail.
func (s *SQLiteNotificationLogStore) MarkFailed(ctx context.Context, id, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_log SET status = ?, error_message = ?
		WHERE id = ?`,
		LogStatusFailed, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s failed: %w", id, err)
	}
	return requireRow(res, id)
}

// Get returns one row by id.
func (s *SQLiteNotificationLogStore) Get(ctx context.Context, id string) (*NotificationLogEntry, error) {
	row := s.db.QueryRowContext(ctx, selectLog+" WHERE id = ?", id)
	entry, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification %s: %w", id, err)
	}
	return entry, nil
}

// List returns the most recent rows ordered by created_at descending.
func (s *SQLiteNotificationLogStore) List(ctx context.Context, limit int) ([]NotificationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectLog+" ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying notification log: %w", err)
	}
	return collectLogs(rows)
}

// ListByEndpoint returns the most recent rows whose metadata references the
// given webhook endpoint.
func (s *SQLiteNotificationLogStore) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]NotificationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectLog+`
		WHERE json_extract(metadata, '$.endpoint_id') = ?
		ORDER BY created_at DESC LIMIT ?`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries for endpoint %s: %w", endpointID, err)
	}
	return collectLogs(rows)
}

const selectLog = `
	SELECT id, type, recipient, subject, status, template_name, error_message,
	       metadata, delivered_at, opened_at, created_at
	FROM notification_log`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(r rowScanner) (*NotificationLogEntry, error) {
	var e NotificationLogEntry
	var rawMeta string
	var deliveredAt, openedAt sql.NullTime
	err := r.Scan(&e.ID, &e.Type, &e.Recipient, &e.Subject, &e.Status,
		&e.TemplateName, &e.ErrorMessage, &rawMeta, &deliveredAt, &openedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rawMeta != "" {
		if err := json.Unmarshal([]byte(rawMeta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", e.ID, err)
		}
	}
	if deliveredAt.Valid {
		e.DeliveredAt = &deliveredAt.Time
	}
	if openedAt.Valid {
		e.OpenedAt = &openedAt.Time
	}
	return &e, nil
}

func collectLogs(rows *sql.Rows) ([]NotificationLogEntry, error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Row iteration already surfaced any real error.
			_ = cerr
		}
	}()

	var entries []NotificationLogEntry
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification log row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification log rows: %w", err)
	}
	return entries, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
