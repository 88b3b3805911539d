package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/store"
)

func backends(t *testing.T) map[string]*store.Templates {
	t.Helper()
	sq, err := store.OpenSQLite(filepath.Join(t.TempDir(), "templates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]*store.Templates{
		"memory": store.NewMemory(),
		"sqlite": sq,
	}
}

func smallDef() *definition.Definition {
	return &definition.Definition{
		Steps: []definition.Step{{
			Key: "s1", Label: "One",
			Operators: []definition.OperatorRef{{ID: "a", OperatorKey: "summary", ConfigOverrides: map[string]any{"tone": "brief"}}},
		}},
		Edges: []definition.Edge{
			{ID: "e0", SourceOp: definition.InputSentinel, SourcePort: "text", TargetOp: "a", TargetPort: "text"},
		},
	}
}

func TestPaperDefault_LintsClean(t *testing.T) {
	reg := manifest.NewRegistry(manifest.Builtins()...)
	assert.Empty(t, definition.Lint(store.PaperDefault(), reg))
}

func TestTemplates(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Seed(ctx, s))
			// Seeding twice is harmless.
			require.NoError(t, store.Seed(ctx, s))

			sys, err := s.Get(ctx, store.PaperDefaultID)
			require.NoError(t, err)
			assert.True(t, sys.IsSystem)
			assert.Len(t, sys.Definition.Steps, 5)
			assert.Len(t, sys.Definition.Edges, 13)

			created, err := s.Create(ctx, "Mine", "desc", smallDef())
			require.NoError(t, err)
			assert.False(t, created.IsSystem)
			assert.NotEmpty(t, created.ID)

			got, err := s.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "Mine", got.Name)
			assert.Equal(t, smallDef().Normalized(), got.Definition.Normalized())

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, store.PaperDefaultID, list[0].ID)
			assert.Equal(t, created.ID, list[1].ID)

			// System templates are read-only.
			_, err = s.SaveDefinition(ctx, store.PaperDefaultID, smallDef())
			assert.ErrorIs(t, err, store.ErrReadOnly)
			assert.ErrorIs(t, s.Delete(ctx, store.PaperDefaultID), store.ErrReadOnly)

			// Clone gives an editable deep copy.
			clone, err := s.Clone(ctx, store.PaperDefaultID)
			require.NoError(t, err)
			assert.Equal(t, "Paper Processing (Default) (Copy)", clone.Name)
			assert.False(t, clone.IsSystem)
			assert.NotEqual(t, store.PaperDefaultID, clone.ID)
			assert.Equal(t, sys.Definition.Normalized(), clone.Definition.Normalized())

			def := clone.Definition.Clone()
			def.Steps = def.Steps[:1]
			def.Edges = def.Edges[:1]
			saved, err := s.SaveDefinition(ctx, clone.ID, def)
			require.NoError(t, err)
			assert.Len(t, saved.Definition.Steps, 1)

			sys, err = s.Get(ctx, store.PaperDefaultID)
			require.NoError(t, err)
			assert.Len(t, sys.Definition.Steps, 5, "clone must not share state with its source")

			name := "Renamed"
			upd, err := s.Update(ctx, created.ID, store.Update{Name: &name})
			require.NoError(t, err)
			assert.Equal(t, "Renamed", upd.Name)
			assert.Equal(t, "desc", upd.Description)

			require.NoError(t, s.Delete(ctx, created.ID))
			_, err = s.Get(ctx, created.ID)
			assert.ErrorIs(t, err, store.ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, created.ID), store.ErrNotFound)
			_, err = s.Clone(ctx, "missing")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestOpen_UnknownType(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Type: "mongo"})
	assert.Error(t, err)

	s, err := store.Open(context.Background(), store.Config{Type: "memory"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
