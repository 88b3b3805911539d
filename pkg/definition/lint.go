package definition

import (
	"fmt"
	"sort"

	"github.com/heimdalr/dag"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// Lint runs Validate and then the checks the editor does not enforce while the
// user is drawing: cycles, unknown operators, unknown ports, port type
// mismatches and required inputs left unconnected. A required input counts as
// connected when an edge feeds it or a config override of the same name sets it.
//
// Lint never blocks a save; callers report the issues.
func Lint(d *Definition, reg *manifest.Registry) []Issue {
	issues := Validate(d)
	issues = append(issues, cycleIssues(d)...)
	if reg == nil {
		return issues
	}

	type resolved struct {
		op OperatorRef
		m  manifest.Manifest
	}
	ops := map[string]resolved{}
	for _, s := range d.Steps {
		for _, op := range s.Operators {
			if _, seen := ops[op.ID]; seen || op.ID == "" {
				continue
			}
			m, ok := reg.Get(op.OperatorKey)
			if !ok {
				issues = append(issues, Issue{
					Kind:    IssueUnknownOperator,
					Subject: op.ID,
					Message: fmt.Sprintf("operator key %q is not registered", op.OperatorKey),
				})
				continue
			}
			ops[op.ID] = resolved{op: op, m: m}
		}
	}

	fed := map[string]map[string]bool{}
	for _, e := range d.Edges {
		tgt, tok := ops[e.TargetOp]
		if fed[e.TargetOp] == nil {
			fed[e.TargetOp] = map[string]bool{}
		}
		fed[e.TargetOp][e.TargetPort] = true

		var inPort manifest.Port
		var inOK bool
		if tok {
			inPort, inOK = tgt.m.InputPort(e.TargetPort)
			if !inOK {
				issues = append(issues, Issue{
					Kind:    IssueUnknownPort,
					Subject: e.ID,
					Message: fmt.Sprintf("operator %q has no input port %q", e.TargetOp, e.TargetPort),
				})
			}
		}

		if e.IsBoundary() {
			continue
		}
		src, sok := ops[e.SourceOp]
		if !sok {
			continue
		}
		outPort, outOK := src.m.OutputPort(e.SourcePort)
		if !outOK {
			issues = append(issues, Issue{
				Kind:    IssueUnknownPort,
				Subject: e.ID,
				Message: fmt.Sprintf("operator %q has no output port %q", e.SourceOp, e.SourcePort),
			})
			continue
		}
		if inOK && outPort.Type != inPort.Type {
			issues = append(issues, Issue{
				Kind:    IssuePortMismatch,
				Subject: e.ID,
				Message: fmt.Sprintf("%s.%s (%s) feeds %s.%s (%s)",
					e.SourceOp, e.SourcePort, outPort.Type, e.TargetOp, e.TargetPort, inPort.Type),
			})
		}
	}

	ids := make([]string, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := ops[id]
		for _, p := range r.m.InputPorts {
			if !p.Required || fed[id][p.Key] {
				continue
			}
			if _, ok := r.op.ConfigOverrides[p.Key]; ok {
				continue
			}
			issues = append(issues, Issue{
				Kind:    IssueUnconnectedInput,
				Subject: id,
				Message: fmt.Sprintf("required input port %q is not connected", p.Key),
			})
		}
	}

	return issues
}

// cycleIssues loads the operator graph into a DAG edge by edge; an edge that
// would close a loop is reported and left out.
func cycleIssues(d *Definition) []Issue {
	g := dag.NewDAG()
	for _, s := range d.Steps {
		for _, op := range s.Operators {
			if op.ID == "" {
				continue
			}
			// Duplicate ids are reported by Validate.
			_ = g.AddVertexByID(op.ID, op.ID)
		}
	}

	var issues []Issue
	seen := map[[2]string]bool{}
	for _, e := range d.Edges {
		if e.IsBoundary() {
			continue
		}
		pair := [2]string{e.SourceOp, e.TargetOp}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		if closesCycle(g, e.SourceOp, e.TargetOp) {
			issues = append(issues, Issue{
				Kind:    IssueCycle,
				Subject: e.ID,
				Message: fmt.Sprintf("edge %s -> %s closes a cycle", e.SourceOp, e.TargetOp),
			})
			continue
		}
		// Unknown endpoints are reported by Validate.
		_ = g.AddEdge(e.SourceOp, e.TargetOp)
	}
	return issues
}

// closesCycle reports whether adding src -> dst would make dst reach itself.
func closesCycle(g *dag.DAG, src, dst string) bool {
	if src == dst {
		return true
	}
	desc, err := g.GetDescendants(dst)
	if err != nil {
		return false
	}
	_, ok := desc[src]
	return ok
}

// Levels groups operator ids into execution levels using Kahn's algorithm:
// operators in the same level have no dependencies on each other. Boundary
// edges are ignored. Ids inside a level keep definition order.
func Levels(d *Definition) ([][]string, error) {
	var all []string
	inDegree := map[string]int{}
	dependents := map[string][]string{}
	for _, s := range d.Steps {
		for _, op := range s.Operators {
			if _, ok := inDegree[op.ID]; ok {
				continue
			}
			all = append(all, op.ID)
			inDegree[op.ID] = 0
		}
	}

	seen := map[[2]string]bool{}
	for _, e := range d.Edges {
		if e.IsBoundary() {
			continue
		}
		if _, ok := inDegree[e.SourceOp]; !ok {
			return nil, fmt.Errorf("%w: edge %q references unknown source %q", ErrStructural, e.ID, e.SourceOp)
		}
		if _, ok := inDegree[e.TargetOp]; !ok {
			return nil, fmt.Errorf("%w: edge %q references unknown target %q", ErrStructural, e.ID, e.TargetOp)
		}
		pair := [2]string{e.SourceOp, e.TargetOp}
		if seen[pair] {
			continue
		}
		seen[pair] = true
		inDegree[e.TargetOp]++
		dependents[e.SourceOp] = append(dependents[e.SourceOp], e.TargetOp)
	}

	var levels [][]string
	var queue []string
	for _, id := range all {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	done := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		done += len(queue)
		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if done != len(all) {
		return nil, fmt.Errorf("%w: pipeline has a cycle, only %d/%d operators reachable", ErrStructural, done, len(all))
	}
	return levels, nil
}
