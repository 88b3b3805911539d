package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

type memoryBackend struct {
	mu   sync.RWMutex
	rows map[string]definition.Template
}

// NewMemory returns a Templates store kept in process memory.
func NewMemory() *Templates {
	return newTemplates(&memoryBackend{rows: map[string]definition.Template{}})
}

func (m *memoryBackend) list(_ context.Context) ([]definition.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]definition.Template, 0, len(m.rows))
	for _, t := range m.rows {
		out = append(out, copyRow(t))
	}
	return out, nil
}

func (m *memoryBackend) get(_ context.Context, id string) (*definition.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyRow(t)
	return &cp, nil
}

func (m *memoryBackend) insert(_ context.Context, t *definition.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; ok {
		return fmt.Errorf("template %q already exists", t.ID)
	}
	m.rows[t.ID] = copyRow(*t)
	return nil
}

func (m *memoryBackend) replace(_ context.Context, t *definition.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; !ok {
		return ErrNotFound
	}
	m.rows[t.ID] = copyRow(*t)
	return nil
}

func (m *memoryBackend) upsert(_ context.Context, t *definition.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.rows[t.ID]; ok {
		t.CreatedAt = old.CreatedAt
	}
	m.rows[t.ID] = copyRow(*t)
	return nil
}

func (m *memoryBackend) remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryBackend) close() error { return nil }

func copyRow(t definition.Template) definition.Template {
	t.Definition = *t.Definition.Clone()
	return t
}
