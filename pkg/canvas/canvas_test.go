package canvas_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/canvas"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/graph"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// ─── fakes ────────────────────────────────────────────────────────────────────

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ListManifests(ctx context.Context) ([]manifest.Manifest, error) {
	args := m.Called(ctx)
	ms, _ := args.Get(0).([]manifest.Manifest)
	return ms, args.Error(1)
}

func (m *mockGateway) LoadTemplate(ctx context.Context, id string) (*definition.Template, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*definition.Template)
	return t, args.Error(1)
}

func (m *mockGateway) SaveDefinition(ctx context.Context, id string, def *definition.Definition) (*definition.Template, error) {
	args := m.Called(ctx, id, def)
	t, _ := args.Get(0).(*definition.Template)
	return t, args.Error(1)
}

func (m *mockGateway) CloneTemplate(ctx context.Context, id string) (*definition.Template, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*definition.Template)
	return t, args.Error(1)
}

func sequentialIDs() func(string) string {
	var mu sync.Mutex
	n := 0
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
}

func sampleTemplate(system bool) *definition.Template {
	return &definition.Template{
		ID:       "t1",
		Name:     "Paper",
		IsSystem: system,
		Definition: definition.Definition{
			Steps: []definition.Step{{
				Key: "s1", Label: "Summaries",
				Operators: []definition.OperatorRef{
					{ID: "a", OperatorKey: "summary", ConfigOverrides: map[string]any{}},
					{ID: "b", OperatorKey: "save_summary", ConfigOverrides: map[string]any{}},
				},
			}},
			Edges: []definition.Edge{
				{ID: "e0", SourceOp: definition.InputSentinel, SourcePort: "text", TargetOp: "a", TargetPort: "text"},
				{ID: "e1", SourceOp: "a", SourcePort: "summary", TargetOp: "b", TargetPort: "summary"},
			},
		},
	}
}

func openCanvas(t *testing.T, gw *mockGateway, system bool, opts ...canvas.Option) *canvas.Canvas {
	t.Helper()
	opts = append([]canvas.Option{canvas.WithIDGenerator(sequentialIDs())}, opts...)
	c := canvas.New(gw, opts...)
	c.SetManifests(manifest.Builtins())
	c.LoadTemplate(sampleTemplate(system))
	require.False(t, c.Dirty())
	return c
}

// ─── loading ──────────────────────────────────────────────────────────────────

func TestOpen_FetchesManifestsAndTemplate(t *testing.T) {
	gw := &mockGateway{}
	gw.On("ListManifests", mock.Anything).Return(manifest.Builtins(), nil)
	gw.On("LoadTemplate", mock.Anything, "t1").Return(sampleTemplate(false), nil)

	c := canvas.New(gw)
	issues, err := c.Open(context.Background(), "t1")
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, definition.IssueBoundaryEdge, issues[0].Kind)

	g := c.Graph()
	assert.Len(t, g.Containers(), 1)
	assert.Len(t, g.Operators(), 2)
	assert.Len(t, g.Edges, 1)
	a, ok := g.Operator("a")
	require.True(t, ok)
	assert.True(t, a.Resolved)
	assert.Equal(t, manifest.KindLLM, a.OperatorKind)
	assert.False(t, c.Dirty())
	assert.False(t, c.ReadOnly())
	gw.AssertExpectations(t)
}

func TestOpen_TransportError(t *testing.T) {
	gw := &mockGateway{}
	boom := errors.New("connection refused")
	gw.On("ListManifests", mock.Anything).Return(nil, boom)
	gw.On("LoadTemplate", mock.Anything, "t1").Return(sampleTemplate(false), nil).Maybe()

	c := canvas.New(gw)
	_, err := c.Open(context.Background(), "t1")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, c.Template())
}

func TestLoad_WaitsForManifests(t *testing.T) {
	c := canvas.New(nil)
	issues := c.LoadTemplate(sampleTemplate(false))
	assert.Empty(t, issues)
	assert.Empty(t, c.Graph().Nodes)

	issues = c.SetManifests(manifest.Builtins())
	assert.Len(t, issues, 1)
	assert.Len(t, c.Graph().Operators(), 2)
	assert.False(t, c.Dirty())
}

func TestSetManifests_KeepsDirtyEdits(t *testing.T) {
	gw := &mockGateway{}
	c := canvas.New(gw, canvas.WithIDGenerator(sequentialIDs()))
	c.SetManifests(nil)
	c.LoadTemplate(sampleTemplate(false))

	a, _ := c.Graph().Operator("a")
	assert.False(t, a.Resolved)

	require.NoError(t, c.Move("s1", definition.Position{X: 100, Y: 100}))
	require.True(t, c.Dirty())

	c.SetManifests(manifest.Builtins())
	g := c.Graph()
	s1, _ := g.Container("s1")
	assert.Equal(t, definition.Position{X: 100, Y: 100}, s1.Position)
	a, _ = g.Operator("a")
	assert.True(t, a.Resolved)
	assert.Equal(t, "TL;DR Summary", a.Label)
	assert.NotEmpty(t, a.InputPorts)
	assert.True(t, c.Dirty())
}

// ─── dirty gating ─────────────────────────────────────────────────────────────

func TestSelection_NeverDirties(t *testing.T) {
	c := openCanvas(t, &mockGateway{}, false)

	require.NoError(t, c.Select("a"))
	assert.Equal(t, "a", c.Selected())
	require.NoError(t, c.Select("s1"))
	c.Deselect()
	assert.Empty(t, c.Selected())
	assert.False(t, c.Dirty())

	assert.ErrorIs(t, c.Select("nope"), graph.ErrNodeNotFound)
}

func TestGestures_Dirty(t *testing.T) {
	cases := map[string]func(c *canvas.Canvas) error{
		"connect": func(c *canvas.Canvas) error {
			_, err := c.Connect("b", "done", "a", "text")
			return err
		},
		"move": func(c *canvas.Canvas) error {
			return c.Move("a", definition.Position{X: 5, Y: 5})
		},
		"reparent": func(c *canvas.Canvas) error {
			return c.Reparent("a", "", definition.Position{X: 900, Y: 0})
		},
		"delete": func(c *canvas.Canvas) error {
			return c.Delete("b")
		},
		"delete edge": func(c *canvas.Canvas) error {
			if !c.DeleteEdge("e1") {
				return errors.New("edge not removed")
			}
			return nil
		},
		"drop": func(c *canvas.Canvas) error {
			m, _ := manifest.NewRegistry(manifest.Builtins()...).Get("reading_notes")
			_, err := c.Drop(m, definition.Position{X: 10, Y: 400})
			return err
		},
		"group": func(c *canvas.Canvas) error {
			_, err := c.Group("New step", definition.Position{X: 0, Y: 600})
			return err
		},
		"update": func(c *canvas.Canvas) error {
			return c.UpdateNodeData("a", graph.OperatorPatch{ConfigOverrides: map[string]any{"max_words": 50}})
		},
	}
	for name, gesture := range cases {
		t.Run(name, func(t *testing.T) {
			c := openCanvas(t, &mockGateway{}, false)
			require.NoError(t, gesture(c))
			assert.True(t, c.Dirty())
		})
	}
}

// ─── read-only policy ─────────────────────────────────────────────────────────

func TestReadOnly_IgnoresMutations(t *testing.T) {
	gw := &mockGateway{}
	c := openCanvas(t, gw, true)
	before := c.Graph()

	id, err := c.Connect("b", "done", "a", "text")
	assert.NoError(t, err)
	assert.Empty(t, id)

	m, _ := manifest.NewRegistry(manifest.Builtins()...).Get("summary")
	id, err = c.Drop(m, definition.Position{})
	assert.NoError(t, err)
	assert.Empty(t, id)

	assert.NoError(t, c.Delete("a"))
	assert.NoError(t, c.Move("s1", definition.Position{X: 50}))
	assert.NoError(t, c.Reparent("a", "", definition.Position{}))
	assert.False(t, c.DeleteEdge("e1"))
	assert.NoError(t, c.UpdateNodeData("a", graph.OperatorPatch{ConfigOverrides: map[string]any{"x": 1}}))

	assert.Equal(t, before, c.Graph())
	assert.False(t, c.Dirty())

	res := c.Save(context.Background())
	assert.Equal(t, canvas.StatusReadOnly, res.Status)
	gw.AssertNotCalled(t, "SaveDefinition", mock.Anything, mock.Anything, mock.Anything)

	// Selection still works so the inspector can show a protected node.
	assert.NoError(t, c.Select("a"))
}

// ─── save ─────────────────────────────────────────────────────────────────────

func TestSave_CleanIsNoop(t *testing.T) {
	gw := &mockGateway{}
	c := openCanvas(t, gw, false)
	res := c.Save(context.Background())
	assert.Equal(t, canvas.StatusClean, res.Status)
	gw.AssertNotCalled(t, "SaveDefinition", mock.Anything, mock.Anything, mock.Anything)
}

func TestSave_KeepsInputEdges(t *testing.T) {
	gw := &mockGateway{}
	var sent *definition.Definition
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*definition.Definition) }).
		Return(sampleTemplate(false), nil)

	c := openCanvas(t, gw, false)
	require.NoError(t, c.Move("s1", definition.Position{X: 40, Y: 40}))

	res := c.Save(context.Background())
	require.Equal(t, canvas.StatusSaved, res.Status, "err: %v", res.Err)
	assert.NoError(t, res.Err)
	assert.False(t, c.Dirty())
	assert.False(t, c.Saving())

	require.NotNil(t, sent)
	want := sampleTemplate(false).Definition
	want.Steps[0].Position = definition.Position{X: 40, Y: 40}
	assert.Equal(t, want.Normalized(), sent.Normalized())
	assert.Empty(t, res.Issues)
}

func TestSave_FailureLeavesDirty(t *testing.T) {
	gw := &mockGateway{}
	boom := errors.New("503 service unavailable")
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).Return(nil, boom).Once()

	c := openCanvas(t, gw, false)
	require.NoError(t, c.Delete("b"))

	res := c.Save(context.Background())
	assert.Equal(t, canvas.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, boom)
	assert.True(t, c.Dirty())
	assert.False(t, c.Saving())

	// A manual retry goes through.
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).Return(sampleTemplate(false), nil).Once()
	res = c.Save(context.Background())
	assert.Equal(t, canvas.StatusSaved, res.Status)
	assert.False(t, c.Dirty())
}

func TestSave_InFlightBlocksSecondSave(t *testing.T) {
	gw := &mockGateway{}
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(sampleTemplate(false), nil).Once()

	c := openCanvas(t, gw, false)
	require.NoError(t, c.Move("a", definition.Position{X: 1}))

	done := make(chan canvas.SaveResult)
	go func() { done <- c.Save(context.Background()) }()
	<-entered

	assert.True(t, c.Saving())
	assert.Equal(t, canvas.StatusInFlight, c.Save(context.Background()).Status)

	// An edit made while the request is in flight keeps the canvas dirty.
	require.NoError(t, c.Move("a", definition.Position{X: 2}))
	close(release)

	res := <-done
	assert.Equal(t, canvas.StatusSaved, res.Status)
	assert.True(t, c.Dirty())
	gw.AssertNumberOfCalls(t, "SaveDefinition", 1)
}

func otherTemplate() *definition.Template {
	t := sampleTemplate(false)
	t.ID = "t2"
	t.Name = "Other"
	t.Definition.Steps[0].Key = "s9"
	t.Definition.Steps[0].Label = "Elsewhere"
	return t
}

func TestSave_LoadDuringSaveKeepsNewTemplate(t *testing.T) {
	gw := &mockGateway{}
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(sampleTemplate(false), nil).Once()
	gw.On("SaveDefinition", mock.Anything, "t2", mock.Anything).Return(otherTemplate(), nil).Once()

	c := openCanvas(t, gw, false)
	_, err := c.Group("Extra", definition.Position{})
	require.NoError(t, err)

	done := make(chan canvas.SaveResult)
	go func() { done <- c.Save(context.Background()) }()
	<-entered

	c.LoadTemplate(otherTemplate())
	assert.False(t, c.Saving())
	close(release)

	res := <-done
	assert.Equal(t, canvas.StatusSaved, res.Status)
	assert.Equal(t, "t1", res.Template.ID)

	assert.Equal(t, "t2", c.Template().ID)
	assert.Equal(t, "Other", c.Template().Name)
	assert.False(t, c.Dirty())
	_, ok := c.Node("s9")
	assert.True(t, ok)
	_, ok = c.Node("s1")
	assert.False(t, ok)

	_, err = c.Group("More", definition.Position{})
	require.NoError(t, err)
	res = c.Save(context.Background())
	require.Equal(t, canvas.StatusSaved, res.Status)
	gw.AssertNumberOfCalls(t, "SaveDefinition", 2)
	gw.AssertCalled(t, "SaveDefinition", mock.Anything, "t2", mock.Anything)
	assert.False(t, c.Dirty())
}

func TestSave_FailureAfterLoadLeavesNewTemplateClean(t *testing.T) {
	gw := &mockGateway{}
	entered := make(chan struct{})
	release := make(chan struct{})
	boom := errors.New("bad gateway")
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil, boom).Once()

	events := make(chan canvas.Event, 4)
	c := openCanvas(t, gw, false, canvas.WithEvents(events))
	_, err := c.Group("Extra", definition.Position{})
	require.NoError(t, err)

	done := make(chan canvas.SaveResult)
	go func() { done <- c.Save(context.Background()) }()
	<-entered
	c.LoadTemplate(otherTemplate())
	close(release)

	res := <-done
	assert.Equal(t, canvas.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "t2", c.Template().ID)
	assert.False(t, c.Dirty())
	assert.False(t, c.Saving())
	for len(events) > 0 {
		assert.NotEqual(t, canvas.EventSaveFailed, (<-events).Type)
	}
}

func TestSave_ReportsLintIssues(t *testing.T) {
	gw := &mockGateway{}
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).Return(sampleTemplate(false), nil)

	c := openCanvas(t, gw, false)
	_, err := c.Connect("b", "done", "a", "text")
	require.NoError(t, err)

	res := c.Save(context.Background())
	require.Equal(t, canvas.StatusSaved, res.Status)
	var cycle bool
	for _, is := range res.Issues {
		if is.Kind == definition.IssueCycle {
			cycle = true
		}
	}
	assert.True(t, cycle, "issues: %v", res.Issues)
}

func TestSave_DropWithoutParentGoesToCustomStep(t *testing.T) {
	gw := &mockGateway{}
	var sent *definition.Definition
	gw.On("SaveDefinition", mock.Anything, "t1", mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(*definition.Definition) }).
		Return(sampleTemplate(false), nil)

	c := openCanvas(t, gw, false)
	m, _ := manifest.NewRegistry(manifest.Builtins()...).Get("reading_notes")
	blob, err := manifest.EncodeTransfer(m)
	require.NoError(t, err)
	id, err := c.DropTransfer(blob, definition.Position{X: 300, Y: 500})
	require.NoError(t, err)
	assert.Equal(t, "reading_notes_1", id)

	res := c.Save(context.Background())
	require.Equal(t, canvas.StatusSaved, res.Status)
	require.NotNil(t, sent)
	require.Len(t, sent.Steps, 2)

	orig := sampleTemplate(false).Definition
	assert.Equal(t, orig.Steps[0], sent.Steps[0])
	assert.Equal(t, definition.CustomStepKey, sent.Steps[1].Key)
	require.Len(t, sent.Steps[1].Operators, 1)
	assert.Equal(t, id, sent.Steps[1].Operators[0].ID)
	assert.Equal(t, "reading_notes", sent.Steps[1].Operators[0].OperatorKey)
}

func TestDropTransfer_RejectsBadPayload(t *testing.T) {
	c := openCanvas(t, &mockGateway{}, false)
	_, err := c.DropTransfer([]byte(`{"type":"text/plain"}`), definition.Position{})
	assert.ErrorIs(t, err, manifest.ErrInvalidTransfer)
	assert.False(t, c.Dirty())
}

// ─── delete and clone ─────────────────────────────────────────────────────────

func TestDelete_ClearsSelectionAndEmits(t *testing.T) {
	events := make(chan canvas.Event, 16)
	c := openCanvas(t, &mockGateway{}, false, canvas.WithEvents(events))
	for len(events) > 0 {
		<-events
	}

	require.NoError(t, c.Select("a"))
	require.NoError(t, c.Delete("a"))
	assert.Empty(t, c.Selected())

	var got []canvas.EventType
	for len(events) > 0 {
		got = append(got, (<-events).Type)
	}
	assert.Equal(t, []canvas.EventType{
		canvas.EventSelected,
		canvas.EventDeselected,
		canvas.EventNodeRemoved,
		canvas.EventEdgeRemoved,
	}, got)

	s1, _ := c.Graph().Container("s1")
	assert.Equal(t, graph.ContainerSize(1), s1.Size)
}

func TestDelete_ContainerOrphansChildren(t *testing.T) {
	gw := &mockGateway{}
	c := openCanvas(t, gw, false)
	require.NoError(t, c.Delete("s1"))

	def := c.Definition()
	require.Len(t, def.Steps, 1)
	assert.Equal(t, definition.CustomStepKey, def.Steps[0].Key)
	assert.Len(t, def.Steps[0].Operators, 2)
	assert.Len(t, def.Edges, 2)
}

func TestClone_SwitchesToEditableCopy(t *testing.T) {
	gw := &mockGateway{}
	copyT := sampleTemplate(false)
	copyT.ID = "t2"
	copyT.Name = "Paper (Copy)"
	gw.On("CloneTemplate", mock.Anything, "t1").Return(copyT, nil)

	c := openCanvas(t, gw, true)
	require.True(t, c.ReadOnly())

	res := c.Clone(context.Background())
	require.Equal(t, canvas.StatusCloned, res.Status)
	assert.Equal(t, "t2", res.Template.ID)
	assert.False(t, c.ReadOnly())
	assert.Equal(t, "t2", c.Template().ID)

	// Editable now.
	_, err := c.Group("Extra", definition.Position{})
	require.NoError(t, err)
	assert.True(t, c.Dirty())

	res = c.Clone(context.Background())
	assert.Equal(t, canvas.StatusEditable, res.Status)
	gw.AssertNumberOfCalls(t, "CloneTemplate", 1)
}

func TestClone_Failure(t *testing.T) {
	gw := &mockGateway{}
	boom := errors.New("timeout")
	gw.On("CloneTemplate", mock.Anything, "t1").Return(nil, boom)

	c := openCanvas(t, gw, true)
	res := c.Clone(context.Background())
	assert.Equal(t, canvas.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, boom)
	assert.True(t, c.ReadOnly())
}

func TestClone_LoadDuringCloneKeepsNewTemplate(t *testing.T) {
	gw := &mockGateway{}
	entered := make(chan struct{})
	release := make(chan struct{})
	copyT := sampleTemplate(false)
	copyT.ID = "t3"
	gw.On("CloneTemplate", mock.Anything, "t1").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(copyT, nil).Once()

	c := openCanvas(t, gw, true)
	done := make(chan canvas.CloneResult)
	go func() { done <- c.Clone(context.Background()) }()
	<-entered
	c.LoadTemplate(otherTemplate())
	close(release)

	res := <-done
	assert.Equal(t, canvas.StatusCloned, res.Status)
	assert.Equal(t, "t3", res.Template.ID)
	assert.Equal(t, "t2", c.Template().ID)
	_, ok := c.Node("s9")
	assert.True(t, ok)
}

func TestSave_NoTemplate(t *testing.T) {
	c := canvas.New(&mockGateway{})
	c.SetManifests(manifest.Builtins())
	c.Load(&sampleTemplate(false).Definition)
	_, err := c.Group("x", definition.Position{})
	require.NoError(t, err)

	res := c.Save(context.Background())
	assert.Equal(t, canvas.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, canvas.ErrNoTemplate)
}
