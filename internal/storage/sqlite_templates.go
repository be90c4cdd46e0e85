package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awd2211/lnk.day-sub003/internal/template"
)

// SQLiteTemplateStore implements template.Store backed by SQLite. Template
// rows are edited by the admin service; the engine only reads them.
type SQLiteTemplateStore struct {
	db *sql.DB
}

// NewSQLiteTemplateStore returns a new SQLiteTemplateStore.
func NewSQLiteTemplateStore(db *sql.DB) *SQLiteTemplateStore {
	return &SQLiteTemplateStore{db: db}
}

// GetByCode returns the template for code, or nil when no row exists.
func (s *SQLiteTemplateStore) GetByCode(ctx context.Context, code string) (*template.Template, error) {
	var tpl template.Template
	var variables string
	err := s.db.QueryRowContext(ctx, `
		SELECT code, type, subject, content, html_content, variables, is_system, is_active
		FROM notification_templates WHERE code = ?`, code,
	).Scan(&tpl.Code, &tpl.Type, &tpl.Subject, &tpl.Content, &tpl.HTMLContent,
		&variables, &tpl.IsSystem, &tpl.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying template %q: %w", code, err)
	}
	if err := json.Unmarshal([]byte(variables), &tpl.Variables); err != nil {
		return nil, fmt.Errorf("decoding variables for template %q: %w", code, err)
	}
	return &tpl, nil
}

// Put upserts a template row. Used by tests and the seeding path.
func (s *SQLiteTemplateStore) Put(ctx context.Context, tpl *template.Template) error {
	variables, err := json.Marshal(tpl.Variables)
	if err != nil {
		return fmt.Errorf("encoding variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_templates
			(code, type, subject, content, html_content, variables, is_system, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			type = excluded.type,
			subject = excluded.subject,
			content = excluded.content,
			html_content = excluded.html_content,
			variables = excluded.variables,
			is_system = excluded.is_system,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		tpl.Code, tpl.Type, tpl.Subject, tpl.Content, tpl.HTMLContent,
		string(variables), tpl.IsSystem, tpl.IsActive, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting template %q: %w", tpl.Code, err)
	}
	return nil
}
