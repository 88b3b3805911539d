package graph

import (
	"fmt"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// Projection is the result of Expand.
//
// Boundary holds the edges fed by the external pipeline input. They have no
// visual form, so they are kept here and handed back to Reattach on save.
// Warnings lists every step, operator and edge Expand had to skip, plus a
// note per boundary edge and per unresolved operator key.
type Projection struct {
	Graph    *Graph
	Boundary []definition.Edge
	Warnings []definition.Issue
}

// Expand builds the visual graph for d. Each step becomes a container sized
// from its operator count; its operators are laid out left to right inside
// it. Unknown operator keys resolve to a tool with no ports. Structural
// problems never abort the expansion: the offending step, operator or edge is
// skipped and reported.
func Expand(d *definition.Definition, reg *manifest.Registry) *Projection {
	p := &Projection{Graph: New(), Boundary: []definition.Edge{}}
	g := p.Graph

	// Step keys and operator ids share the node id space; on a clash the
	// step keeps the id.
	keys := map[string]bool{}
	for _, s := range d.Steps {
		keys[s.Key] = true
	}

	steps := map[string]bool{}
	ops := map[string]bool{}
	var operators []Node

	for _, s := range d.Steps {
		switch {
		case s.Key == "":
			p.warn(definition.IssueEmptyStepKey, "", "step has no key, skipped")
			continue
		case steps[s.Key]:
			p.warn(definition.IssueDuplicateStep, s.Key, "step key used more than once, skipped")
			continue
		}
		steps[s.Key] = true

		var children []Node
		for _, ref := range s.Operators {
			switch {
			case ref.ID == "":
				p.warn(definition.IssueEmptyOperatorID, s.Key, "operator has no id, skipped")
				continue
			case ref.ID == definition.InputSentinel:
				p.warn(definition.IssueDuplicateOperator, ref.ID, "operator id is reserved, skipped")
				continue
			case ops[ref.ID]:
				p.warn(definition.IssueDuplicateOperator, ref.ID, "operator id used more than once, skipped")
				continue
			case keys[ref.ID]:
				p.warn(definition.IssueDuplicateOperator, ref.ID, "operator id collides with a step key, skipped")
				continue
			}
			ops[ref.ID] = true

			m, known := reg.Resolve(ref.OperatorKey)
			if !known {
				p.warn(definition.IssueUnknownOperator, ref.ID,
					fmt.Sprintf("operator key %q is not registered, shown as a tool without ports", ref.OperatorKey))
			}
			op := NewOperatorNode(ref.ID, m, OperatorSlot(len(children)))
			op.Parent = s.Key
			op.OperatorKey = ref.OperatorKey
			op.ConfigOverrides = definition.CopyConfig(ref.ConfigOverrides)
			op.Resolved = known
			children = append(children, op)
		}

		g.Nodes = append(g.Nodes, &ContainerNode{
			ID:       s.Key,
			Label:    s.Label,
			Position: s.Position,
			Size:     ContainerSize(len(children)),
		})
		operators = append(operators, children...)
	}
	g.Nodes = append(g.Nodes, operators...)

	edges := map[string]bool{}
	for _, e := range d.Edges {
		if e.IsBoundary() {
			if !ops[e.TargetOp] {
				p.warn(definition.IssueDanglingEdge, e.ID,
					fmt.Sprintf("input edge targets unknown operator %q, skipped", e.TargetOp))
				continue
			}
			p.Boundary = append(p.Boundary, e)
			p.warn(definition.IssueBoundaryEdge, e.ID,
				fmt.Sprintf("pipeline input %q feeds %s.%s; kept outside the canvas", e.SourcePort, e.TargetOp, e.TargetPort))
			continue
		}
		switch {
		case !ops[e.SourceOp]:
			p.warn(definition.IssueDanglingEdge, e.ID,
				fmt.Sprintf("edge references unknown source operator %q, skipped", e.SourceOp))
			continue
		case !ops[e.TargetOp]:
			p.warn(definition.IssueDanglingEdge, e.ID,
				fmt.Sprintf("edge references unknown target operator %q, skipped", e.TargetOp))
			continue
		case edges[e.ID]:
			p.warn(definition.IssueDuplicateEdge, e.ID, "edge id used more than once, skipped")
			continue
		}
		edges[e.ID] = true
		g.Edges = append(g.Edges, Edge{
			ID:         e.ID,
			Source:     e.SourceOp,
			SourcePort: e.SourcePort,
			Target:     e.TargetOp,
			TargetPort: e.TargetPort,
		})
	}

	return p
}

func (p *Projection) warn(kind definition.IssueKind, subject, msg string) {
	p.Warnings = append(p.Warnings, definition.Issue{Kind: kind, Subject: subject, Message: msg})
}
