// Package template resolves notification templates by code and renders them
// with {{variable}} interpolation. Database templates take precedence;
// compiled-in defaults cover every system code so a missing row never breaks
// a delivery.
package template

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Template is a notification template resolved by code at render time.
type Template struct {
	Code        string   `json:"code" yaml:"code"`
	Type        string   `json:"type" yaml:"type"`
	Subject     string   `json:"subject" yaml:"subject"`
	Content     string   `json:"content" yaml:"content"`
	HTMLContent string   `json:"html_content" yaml:"html_content"`
	Variables   []string `json:"variables" yaml:"variables"`
	IsSystem    bool     `json:"is_system" yaml:"is_system"`
	IsActive    bool     `json:"is_active" yaml:"is_active"`
}

// Store is the read-only template lookup backed by the database. Template
// edits happen outside the engine.
type Store interface {
	// GetByCode returns the active template for code, or nil when none exists.
	GetByCode(ctx context.Context, code string) (*Template, error)
}

// ErrNotFound is returned when neither the store nor the compiled-in
// defaults know the requested code.
var ErrNotFound = errors.New("template not found")

// Resolver resolves templates, preferring active database templates and
// falling back to the embedded defaults.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver. store may be nil, in which case only the
// embedded defaults are consulted.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the template for code. Store errors fall through to the
// defaults so a database hiccup degrades to built-in content instead of
// failing the delivery.
func (r *Resolver) Resolve(ctx context.Context, code string) (*Template, error) {
	if r.store != nil {
		tpl, err := r.store.GetByCode(ctx, code)
		if err == nil && tpl != nil && tpl.IsActive {
			return tpl, nil
		}
	}
	if tpl, ok := defaultTemplates[code]; ok {
		return tpl, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, code)
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Interpolate replaces {{variable}} placeholders with values from data.
// Unknown placeholders are left intact so missing data is visible in the
// delivered content rather than silently blanked.
func Interpolate(text string, data map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := data[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}

// Render produces the subject and both bodies of a template with data applied.
func Render(tpl *Template, data map[string]any) (subject, text, html string) {
	subject = Interpolate(tpl.Subject, data)
	text = Interpolate(tpl.Content, data)
	if tpl.HTMLContent != "" {
		html = Interpolate(tpl.HTMLContent, data)
	}
	return subject, text, html
}
