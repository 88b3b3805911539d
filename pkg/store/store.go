// Package store persists pipeline templates. Templates wraps one of the
// backends (memory, SQLite, Postgres) and enforces the template policy:
// system templates are read-only, clones are always editable.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

var (
	// ErrNotFound is returned when no template has the requested id.
	ErrNotFound = errors.New("template not found")
	// ErrReadOnly is returned when a system template would be modified.
	ErrReadOnly = errors.New("system templates are read-only")
)

// Store is the template persistence contract served over HTTP.
type Store interface {
	List(ctx context.Context) ([]definition.Template, error)
	Get(ctx context.Context, id string) (*definition.Template, error)
	Create(ctx context.Context, name, description string, def *definition.Definition) (*definition.Template, error)
	Update(ctx context.Context, id string, u Update) (*definition.Template, error)
	Delete(ctx context.Context, id string) error
	Clone(ctx context.Context, id string) (*definition.Template, error)
}

// Update is a partial template update. Nil fields are left alone; a non-nil
// Definition replaces the stored one whole.
type Update struct {
	Name        *string
	Description *string
	Definition  *definition.Definition
}

// backend is the raw row storage under Templates. get returns ErrNotFound
// for a missing id.
type backend interface {
	list(ctx context.Context) ([]definition.Template, error)
	get(ctx context.Context, id string) (*definition.Template, error)
	insert(ctx context.Context, t *definition.Template) error
	replace(ctx context.Context, t *definition.Template) error
	upsert(ctx context.Context, t *definition.Template) error
	remove(ctx context.Context, id string) error
	close() error
}

// Templates implements Store on top of a backend.
type Templates struct {
	b     backend
	now   func() time.Time
	newID func() string
}

func newTemplates(b backend) *Templates {
	return &Templates{
		b:     b,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns system templates first, then the rest newest first.
func (s *Templates) List(ctx context.Context) ([]definition.Template, error) {
	ts, err := s.b.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	sortTemplates(ts)
	return ts, nil
}

// Get returns one template.
func (s *Templates) Get(ctx context.Context, id string) (*definition.Template, error) {
	t, err := s.b.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get template %q: %w", id, err)
	}
	return t, nil
}

// Create stores a new editable template with a fresh id.
func (s *Templates) Create(ctx context.Context, name, description string, def *definition.Definition) (*definition.Template, error) {
	now := s.now()
	t := &definition.Template{
		ID:          s.newID(),
		Name:        name,
		Description: description,
		Definition:  *def.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.b.insert(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	slog.Info("template created", "template", t.ID, "name", t.Name)
	return t, nil
}

// Update applies u to an editable template.
func (s *Templates) Update(ctx context.Context, id string, u Update) (*definition.Template, error) {
	t, err := s.b.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update template %q: %w", id, err)
	}
	if t.IsSystem {
		return nil, fmt.Errorf("update template %q: %w", id, ErrReadOnly)
	}
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Definition != nil {
		t.Definition = *u.Definition.Clone()
	}
	t.UpdatedAt = s.now()
	if err := s.b.replace(ctx, t); err != nil {
		return nil, fmt.Errorf("update template %q: %w", id, err)
	}
	return t, nil
}

// SaveDefinition replaces the definition of an editable template.
func (s *Templates) SaveDefinition(ctx context.Context, id string, def *definition.Definition) (*definition.Template, error) {
	return s.Update(ctx, id, Update{Definition: def})
}

// Delete removes an editable template.
func (s *Templates) Delete(ctx context.Context, id string) error {
	t, err := s.b.get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete template %q: %w", id, err)
	}
	if t.IsSystem {
		return fmt.Errorf("delete template %q: %w", id, ErrReadOnly)
	}
	if err := s.b.remove(ctx, id); err != nil {
		return fmt.Errorf("delete template %q: %w", id, err)
	}
	return nil
}

// Clone copies any template, system or not, into a new editable one named
// "<name> (Copy)".
func (s *Templates) Clone(ctx context.Context, id string) (*definition.Template, error) {
	src, err := s.b.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("clone template %q: %w", id, err)
	}
	now := s.now()
	t := &definition.Template{
		ID:          s.newID(),
		Name:        src.Name + " (Copy)",
		Description: src.Description,
		Definition:  *src.Definition.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.b.insert(ctx, t); err != nil {
		return nil, fmt.Errorf("clone template %q: %w", id, err)
	}
	slog.Info("template cloned", "from", id, "to", t.ID)
	return t, nil
}

// Close releases the backend.
func (s *Templates) Close() error { return s.b.close() }

func sortTemplates(ts []definition.Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].IsSystem != ts[j].IsSystem {
			return ts[i].IsSystem
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}

