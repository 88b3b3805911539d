package graph

import (
	"fmt"
	"sort"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

// Collapse turns the visual graph back into a definition.
//
// Each container becomes a step whose operators are its children ordered by
// x position. Operators without a live container are gathered, ordered by x,
// into a single step keyed "custom"; when a container already uses that key
// they are appended after its own children. Edges are copied with unset
// ports defaulted to "output" and "input".
func Collapse(g *Graph) *definition.Definition {
	d := &definition.Definition{Steps: []definition.Step{}, Edges: []definition.Edge{}}

	containers := g.Containers()
	live := make(map[string]bool, len(containers))
	for _, c := range containers {
		live[c.ID] = true
	}

	grouped := map[string][]*OperatorNode{}
	var orphans []*OperatorNode
	for _, o := range g.Operators() {
		if o.Parent != "" && live[o.Parent] {
			grouped[o.Parent] = append(grouped[o.Parent], o)
			continue
		}
		orphans = append(orphans, o)
	}

	customIdx := -1
	for _, c := range containers {
		children := grouped[c.ID]
		sortByX(children)
		label := c.Label
		if label == "" {
			label = c.ID
		}
		if c.ID == definition.CustomStepKey {
			customIdx = len(d.Steps)
		}
		d.Steps = append(d.Steps, definition.Step{
			Key:       c.ID,
			Label:     label,
			Position:  c.Position,
			Operators: refs(children),
		})
	}

	if len(orphans) > 0 {
		// Parents that no longer exist leave a relative position behind;
		// AbsolutePosition falls back to it, which is the best available.
		sort.SliceStable(orphans, func(i, j int) bool {
			return g.AbsolutePosition(orphans[i]).X < g.AbsolutePosition(orphans[j]).X
		})
		if customIdx >= 0 {
			d.Steps[customIdx].Operators = append(d.Steps[customIdx].Operators, refs(orphans)...)
		} else {
			d.Steps = append(d.Steps, definition.Step{
				Key:       definition.CustomStepKey,
				Label:     definition.CustomStepLabel,
				Operators: refs(orphans),
			})
		}
	}

	for _, e := range g.Edges {
		edge := definition.Edge{
			ID:         e.ID,
			SourceOp:   e.Source,
			SourcePort: e.SourcePort,
			TargetOp:   e.Target,
			TargetPort: e.TargetPort,
		}
		if edge.SourcePort == "" {
			edge.SourcePort = definition.DefaultSourcePort
		}
		if edge.TargetPort == "" {
			edge.TargetPort = definition.DefaultTargetPort
		}
		d.Edges = append(d.Edges, edge)
	}

	return d
}

// Reattach appends the boundary edges set aside by Expand to a collapsed
// definition. Edges whose target operator is gone are dropped and reported.
func Reattach(d *definition.Definition, boundary []definition.Edge) []definition.Issue {
	var issues []definition.Issue
	for _, e := range boundary {
		if _, _, ok := d.FindOperator(e.TargetOp); !ok {
			issues = append(issues, definition.Issue{
				Kind:    definition.IssueDanglingEdge,
				Subject: e.ID,
				Message: fmt.Sprintf("input edge dropped: operator %q was deleted", e.TargetOp),
			})
			continue
		}
		d.Edges = append(d.Edges, e)
	}
	return issues
}

func sortByX(ops []*OperatorNode) {
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Position.X < ops[j].Position.X
	})
}

func refs(ops []*OperatorNode) []definition.OperatorRef {
	out := make([]definition.OperatorRef, 0, len(ops))
	for _, o := range ops {
		out = append(out, definition.OperatorRef{
			ID:              o.ID,
			OperatorKey:     o.OperatorKey,
			ConfigOverrides: definition.CopyConfig(o.ConfigOverrides),
		})
	}
	return out
}
