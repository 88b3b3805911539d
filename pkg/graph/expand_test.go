package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/graph"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

func builtins() *manifest.Registry {
	return manifest.NewRegistry(manifest.Builtins()...)
}

func paperDef() *definition.Definition {
	return &definition.Definition{
		Steps: []definition.Step{
			{
				Key: "ingest", Label: "Ingest", Position: definition.Position{X: 0, Y: 0},
				Operators: []definition.OperatorRef{
					{ID: "fetch", OperatorKey: "pdf_fetch", ConfigOverrides: map[string]any{}},
				},
			},
			{
				Key: "study", Label: "Study", Position: definition.Position{X: 0, Y: 200},
				Operators: []definition.OperatorRef{
					{ID: "quiz", OperatorKey: "study_quiz", ConfigOverrides: map[string]any{}},
					{ID: "cards", OperatorKey: "save_cards", ConfigOverrides: map[string]any{"card_type": "flashcard"}},
				},
			},
		},
		Edges: []definition.Edge{
			{ID: "e1", SourceOp: "fetch", SourcePort: "text", TargetOp: "quiz", TargetPort: "text"},
			{ID: "e2", SourceOp: "quiz", SourcePort: "flashcards", TargetOp: "cards", TargetPort: "items"},
		},
	}
}

// ─── Expand ───────────────────────────────────────────────────────────────────

func TestExpand_Layout(t *testing.T) {
	p := graph.Expand(paperDef(), builtins())
	g := p.Graph

	require.Len(t, g.Containers(), 2)
	require.Len(t, g.Operators(), 3)
	require.Len(t, g.Edges, 2)
	assert.Empty(t, p.Warnings)
	assert.Empty(t, p.Boundary)

	study, ok := g.Container("study")
	require.True(t, ok)
	assert.Equal(t, "Study", study.Label)
	assert.Equal(t, definition.Position{X: 0, Y: 200}, study.Position)
	assert.Equal(t, graph.ContainerSize(2), study.Size)
	assert.Equal(t, 2*graph.ContainerPadding+2*graph.OperatorWidth+graph.OperatorGap, study.Size.Width)

	cards, ok := g.Operator("cards")
	require.True(t, ok)
	assert.Equal(t, "study", cards.Parent)
	assert.Equal(t, graph.OperatorSlot(1), cards.Position)
	assert.Equal(t, manifest.KindTool, cards.OperatorKind)
	assert.Len(t, cards.InputPorts, 2)
	assert.Equal(t, "flashcard", cards.ConfigOverrides["card_type"])
	assert.True(t, cards.Resolved)

	// Containers precede operators.
	assert.Equal(t, graph.KindContainer, g.Nodes[0].Kind())
	assert.Equal(t, graph.KindContainer, g.Nodes[1].Kind())
	assert.Equal(t, graph.KindOperator, g.Nodes[2].Kind())
}

func TestExpand_EmptyStepUsesFloorWidth(t *testing.T) {
	d := &definition.Definition{Steps: []definition.Step{{Key: "empty", Label: "Empty"}}}
	p := graph.Expand(d, builtins())

	c, ok := p.Graph.Container("empty")
	require.True(t, ok)
	assert.Equal(t, graph.MinContainerWidth, c.Size.Width)
	assert.Equal(t, definition.Position{}, c.Position)
}

func TestExpand_UnknownOperator(t *testing.T) {
	d := &definition.Definition{Steps: []definition.Step{{
		Key:       "s1",
		Operators: []definition.OperatorRef{{ID: "x", OperatorKey: "does_not_exist"}},
	}}}
	p := graph.Expand(d, builtins())

	op, ok := p.Graph.Operator("x")
	require.True(t, ok)
	assert.Equal(t, manifest.KindTool, op.OperatorKind)
	assert.Empty(t, op.InputPorts)
	assert.Empty(t, op.OutputPorts)
	assert.False(t, op.Resolved)
	assert.Equal(t, "does_not_exist", op.OperatorKey)

	require.Len(t, p.Warnings, 1)
	assert.Equal(t, definition.IssueUnknownOperator, p.Warnings[0].Kind)
}

func TestExpand_NilRegistry(t *testing.T) {
	p := graph.Expand(paperDef(), nil)
	require.Len(t, p.Graph.Operators(), 3)
	for _, op := range p.Graph.Operators() {
		assert.Equal(t, manifest.KindTool, op.OperatorKind)
		assert.False(t, op.Resolved)
	}
}

func TestExpand_StructuralProblemsAreSkipped(t *testing.T) {
	d := &definition.Definition{
		Steps: []definition.Step{
			{Key: "s1", Operators: []definition.OperatorRef{{ID: "a", OperatorKey: "summary"}, {ID: "a", OperatorKey: "summary"}}},
			{Key: "s1", Operators: []definition.OperatorRef{{ID: "b", OperatorKey: "summary"}}},
			{Key: "", Operators: []definition.OperatorRef{{ID: "c", OperatorKey: "summary"}}},
		},
		Edges: []definition.Edge{
			{ID: "e1", SourceOp: "a", SourcePort: "summary", TargetOp: "ghost", TargetPort: "text"},
			{ID: "e2", SourceOp: "ghost", SourcePort: "summary", TargetOp: "a", TargetPort: "text"},
		},
	}
	p := graph.Expand(d, builtins())

	assert.Len(t, p.Graph.Containers(), 1)
	assert.Len(t, p.Graph.Operators(), 1)
	assert.Empty(t, p.Graph.Edges)

	kinds := map[definition.IssueKind]int{}
	for _, w := range p.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 1, kinds[definition.IssueDuplicateOperator])
	assert.Equal(t, 1, kinds[definition.IssueDuplicateStep])
	assert.Equal(t, 1, kinds[definition.IssueEmptyStepKey])
	assert.Equal(t, 2, kinds[definition.IssueDanglingEdge])
}

func TestExpand_OperatorIDMatchingStepKeyIsSkipped(t *testing.T) {
	d := &definition.Definition{
		Steps: []definition.Step{
			{Key: "s1", Label: "First", Operators: []definition.OperatorRef{
				{ID: "s2", OperatorKey: "summary"},
				{ID: "a", OperatorKey: "summary"},
			}},
			{Key: "s2", Label: "Second", Operators: []definition.OperatorRef{{ID: "s1", OperatorKey: "save_summary"}}},
		},
		Edges: []definition.Edge{
			{ID: "e1", SourceOp: "s2", SourcePort: "summary", TargetOp: "a", TargetPort: "text"},
		},
	}
	p := graph.Expand(d, builtins())

	assert.Len(t, p.Graph.Containers(), 2)
	ops := p.Graph.Operators()
	require.Len(t, ops, 1)
	assert.Equal(t, "a", ops[0].ID)
	assert.Empty(t, p.Graph.Edges)

	n, ok := p.Graph.Node("s1")
	require.True(t, ok)
	assert.Equal(t, graph.KindContainer, n.Kind())

	var collisions []string
	for _, w := range p.Warnings {
		if w.Kind == definition.IssueDuplicateOperator {
			collisions = append(collisions, w.Subject)
		}
	}
	assert.Equal(t, []string{"s2", "s1"}, collisions)
}

func TestExpand_BoundaryEdgesSetAside(t *testing.T) {
	d := paperDef()
	d.Edges = append(d.Edges,
		definition.Edge{ID: "e0", SourceOp: definition.InputSentinel, SourcePort: "url", TargetOp: "fetch", TargetPort: "url"},
		definition.Edge{ID: "e9", SourceOp: definition.InputSentinel, SourcePort: "url", TargetOp: "gone", TargetPort: "url"},
	)
	p := graph.Expand(d, builtins())

	assert.Len(t, p.Graph.Edges, 2)
	require.Len(t, p.Boundary, 1)
	assert.Equal(t, "e0", p.Boundary[0].ID)

	var boundary, dangling int
	for _, w := range p.Warnings {
		switch w.Kind {
		case definition.IssueBoundaryEdge:
			boundary++
		case definition.IssueDanglingEdge:
			dangling++
		}
	}
	assert.Equal(t, 1, boundary)
	assert.Equal(t, 1, dangling)
}

// ─── Collapse ─────────────────────────────────────────────────────────────────

func TestRoundTrip(t *testing.T) {
	d := paperDef()
	got := graph.Collapse(graph.Expand(d, builtins()).Graph)
	assert.Equal(t, d.Normalized(), got.Normalized())
}

func TestRoundTrip_UnknownOperatorKeepsConfig(t *testing.T) {
	d := &definition.Definition{
		Steps: []definition.Step{{
			Key: "s1", Label: "One",
			Operators: []definition.OperatorRef{
				{ID: "x", OperatorKey: "legacy_op", ConfigOverrides: map[string]any{"depth": 3, "tags": []any{"a"}}},
			},
		}},
		Edges: []definition.Edge{},
	}
	got := graph.Collapse(graph.Expand(d, builtins()).Graph)
	assert.Equal(t, d.Normalized(), got.Normalized())
}

func TestRoundTrip_WithBoundaryEdges(t *testing.T) {
	d := paperDef()
	d.Edges = append(d.Edges, definition.Edge{
		ID: "e0", SourceOp: definition.InputSentinel, SourcePort: "url", TargetOp: "fetch", TargetPort: "url",
	})
	p := graph.Expand(d, builtins())
	got := graph.Collapse(p.Graph)
	assert.Len(t, got.Edges, 2)

	issues := graph.Reattach(got, p.Boundary)
	assert.Empty(t, issues)
	assert.Equal(t, d.Normalized(), got.Normalized())
}

func TestReattach_DropsEdgesToDeletedOperators(t *testing.T) {
	d := paperDef()
	d.Edges = append(d.Edges, definition.Edge{
		ID: "e0", SourceOp: definition.InputSentinel, SourcePort: "url", TargetOp: "fetch", TargetPort: "url",
	})
	p := graph.Expand(d, builtins())
	_, err := p.Graph.RemoveNode("fetch")
	require.NoError(t, err)

	got := graph.Collapse(p.Graph)
	issues := graph.Reattach(got, p.Boundary)
	require.Len(t, issues, 1)
	assert.Equal(t, definition.IssueDanglingEdge, issues[0].Kind)
	for _, e := range got.Edges {
		assert.NotEqual(t, "e0", e.ID)
	}
}

func TestCollapse_OrderFollowsX(t *testing.T) {
	p := graph.Expand(paperDef(), builtins())
	require.NoError(t, p.Graph.Move("quiz", graph.OperatorSlot(3)))

	got := graph.Collapse(p.Graph)
	var study definition.Step
	for _, s := range got.Steps {
		if s.Key == "study" {
			study = s
		}
	}
	require.Len(t, study.Operators, 2)
	assert.Equal(t, "cards", study.Operators[0].ID)
	assert.Equal(t, "quiz", study.Operators[1].ID)
}

func TestCollapse_OrphansCoalesce(t *testing.T) {
	g := graph.Expand(paperDef(), builtins()).Graph
	reg := builtins()
	for i, x := range []float64{900, 300, 600} {
		m, _ := reg.Get("summary")
		id := []string{"o1", "o2", "o3"}[i]
		require.NoError(t, g.AddNode(graph.NewOperatorNode(id, m, definition.Position{X: x, Y: 500})))
	}

	got := graph.Collapse(g)
	require.Len(t, got.Steps, 3)
	custom := got.Steps[2]
	assert.Equal(t, definition.CustomStepKey, custom.Key)
	assert.Equal(t, definition.CustomStepLabel, custom.Label)
	assert.Equal(t, definition.Position{}, custom.Position)
	require.Len(t, custom.Operators, 3)
	assert.Equal(t, "o2", custom.Operators[0].ID)
	assert.Equal(t, "o3", custom.Operators[1].ID)
	assert.Equal(t, "o1", custom.Operators[2].ID)
}

func TestCollapse_OrphansJoinExistingCustomStep(t *testing.T) {
	d := &definition.Definition{Steps: []definition.Step{{
		Key: definition.CustomStepKey, Label: definition.CustomStepLabel,
		Operators: []definition.OperatorRef{{ID: "a", OperatorKey: "summary"}},
	}}}
	g := graph.Expand(d, builtins()).Graph
	m, _ := builtins().Get("reading_notes")
	require.NoError(t, g.AddNode(graph.NewOperatorNode("b", m, definition.Position{X: -50})))

	got := graph.Collapse(g)
	require.Len(t, got.Steps, 1)
	require.Len(t, got.Steps[0].Operators, 2)
	assert.Equal(t, "a", got.Steps[0].Operators[0].ID)
	assert.Equal(t, "b", got.Steps[0].Operators[1].ID)
	assert.Empty(t, definition.Validate(got))
}

func TestCollapse_DetachedChildrenBecomeOrphans(t *testing.T) {
	g := graph.Expand(paperDef(), builtins()).Graph
	_, err := g.RemoveNode("study")
	require.NoError(t, err)

	quiz, ok := g.Operator("quiz")
	require.True(t, ok)
	assert.Empty(t, quiz.Parent)
	assert.Equal(t, definition.Position{X: graph.OperatorSlot(0).X, Y: 200 + graph.OperatorSlot(0).Y}, quiz.Position)

	got := graph.Collapse(g)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, definition.CustomStepKey, got.Steps[1].Key)
	assert.Len(t, got.Steps[1].Operators, 2)
	assert.Len(t, got.Edges, 2)
}

func TestCollapse_DefaultsPorts(t *testing.T) {
	g := graph.Expand(paperDef(), builtins()).Graph
	require.NoError(t, g.AddEdge(graph.Edge{ID: "e3", Source: "fetch", Target: "cards"}))

	got := graph.Collapse(g)
	var e3 definition.Edge
	for _, e := range got.Edges {
		if e.ID == "e3" {
			e3 = e
		}
	}
	assert.Equal(t, definition.DefaultSourcePort, e3.SourcePort)
	assert.Equal(t, definition.DefaultTargetPort, e3.TargetPort)
}

func TestCollapse_LabelFallsBackToKey(t *testing.T) {
	d := &definition.Definition{Steps: []definition.Step{{Key: "s1"}}}
	got := graph.Collapse(graph.Expand(d, builtins()).Graph)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "s1", got.Steps[0].Label)
}

func TestScenario_DeleteSourceOperator(t *testing.T) {
	d := &definition.Definition{
		Steps: []definition.Step{{
			Key: "s1",
			Operators: []definition.OperatorRef{
				{ID: "a", OperatorKey: "summarize"},
				{ID: "b", OperatorKey: "score"},
			},
		}},
		Edges: []definition.Edge{{ID: "e1", SourceOp: "a", SourcePort: "out", TargetOp: "b", TargetPort: "in"}},
	}
	g := graph.Expand(d, builtins()).Graph
	assert.Len(t, g.Containers(), 1)
	assert.Len(t, g.Operators(), 2)
	assert.Len(t, g.Edges, 1)

	removed, err := g.RemoveNode("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, removed)

	got := graph.Collapse(g)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "s1", got.Steps[0].Key)
	require.Len(t, got.Steps[0].Operators, 1)
	assert.Equal(t, "b", got.Steps[0].Operators[0].ID)
	assert.Empty(t, got.Edges)
}
