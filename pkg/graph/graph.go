package graph

import (
	"errors"
	"fmt"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

var (
	// ErrNodeNotFound is returned when an id names no node in the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrDuplicateID is returned when a node or edge id is already taken.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrWrongKind is returned when an operation needs the other node variant.
	ErrWrongKind = errors.New("wrong node kind")
)

// Graph is the live visual graph. Containers are kept ahead of the operators
// they hold.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: append([]Edge{}, g.Edges...),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.clone()
	}
	return out
}

func (g *Graph) index(id string) int {
	for i, n := range g.Nodes {
		if n.NodeID() == id {
			return i
		}
	}
	return -1
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	if i := g.index(id); i >= 0 {
		return g.Nodes[i], true
	}
	return nil, false
}

// Container returns the container with the given id.
func (g *Graph) Container(id string) (*ContainerNode, bool) {
	n, ok := g.Node(id)
	if !ok {
		return nil, false
	}
	c, ok := n.(*ContainerNode)
	return c, ok
}

// Operator returns the operator node with the given id.
func (g *Graph) Operator(id string) (*OperatorNode, bool) {
	n, ok := g.Node(id)
	if !ok {
		return nil, false
	}
	o, ok := n.(*OperatorNode)
	return o, ok
}

// Containers returns every container in node order.
func (g *Graph) Containers() []*ContainerNode {
	var out []*ContainerNode
	for _, n := range g.Nodes {
		if c, ok := n.(*ContainerNode); ok {
			out = append(out, c)
		}
	}
	return out
}

// Operators returns every operator node in node order.
func (g *Graph) Operators() []*OperatorNode {
	var out []*OperatorNode
	for _, n := range g.Nodes {
		if o, ok := n.(*OperatorNode); ok {
			out = append(out, o)
		}
	}
	return out
}

// Children returns the operators parented to containerID, in node order.
func (g *Graph) Children(containerID string) []*OperatorNode {
	var out []*OperatorNode
	for _, o := range g.Operators() {
		if o.Parent == containerID {
			out = append(out, o)
		}
	}
	return out
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id string) (Edge, bool) {
	for _, e := range g.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return Edge{}, false
}

// AbsolutePosition returns the canvas position of a node, adding the parent
// container's position for grouped operators.
func (g *Graph) AbsolutePosition(n Node) definition.Position {
	switch t := n.(type) {
	case *ContainerNode:
		return t.Position
	case *OperatorNode:
		if t.Parent == "" {
			return t.Position
		}
		if c, ok := g.Container(t.Parent); ok {
			return definition.Position{X: c.Position.X + t.Position.X, Y: c.Position.Y + t.Position.Y}
		}
		return t.Position
	}
	return definition.Position{}
}

// ─── mutations ────────────────────────────────────────────────────────────────

// Fit resizes a container to its current child count.
func (g *Graph) Fit(containerID string) {
	if c, ok := g.Container(containerID); ok {
		c.Size = ContainerSize(len(g.Children(containerID)))
	}
}

// AddNode appends n. Containers are inserted ahead of the first operator so
// parents always precede their children.
func (g *Graph) AddNode(n Node) error {
	if g.index(n.NodeID()) >= 0 {
		return fmt.Errorf("%w: node %q", ErrDuplicateID, n.NodeID())
	}
	if o, ok := n.(*OperatorNode); ok && o.Parent != "" {
		if _, ok := g.Container(o.Parent); !ok {
			return fmt.Errorf("%w: parent container %q", ErrNodeNotFound, o.Parent)
		}
	}
	if _, ok := n.(*ContainerNode); ok {
		for i, existing := range g.Nodes {
			if existing.Kind() == KindOperator {
				g.Nodes = append(g.Nodes[:i], append([]Node{n}, g.Nodes[i:]...)...)
				return nil
			}
		}
	}
	g.Nodes = append(g.Nodes, n)
	return nil
}

// RemoveNode deletes a node and every edge touching it. Removing a container
// detaches its children in place: they keep their absolute position and
// become unparented. It returns the ids of the removed edges.
func (g *Graph) RemoveNode(id string) ([]string, error) {
	i := g.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if c, ok := g.Nodes[i].(*ContainerNode); ok {
		for _, child := range g.Children(c.ID) {
			abs := g.AbsolutePosition(child)
			child.Parent = ""
			child.Position = abs
		}
	}
	g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)

	var removed []string
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Touches(id) {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	g.Edges = kept
	return removed, nil
}

// AddEdge appends e. Both endpoints must be operator nodes.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.Edge(e.ID); ok {
		return fmt.Errorf("%w: edge %q", ErrDuplicateID, e.ID)
	}
	for _, end := range []string{e.Source, e.Target} {
		n, ok := g.Node(end)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNodeNotFound, end)
		}
		if n.Kind() != KindOperator {
			return fmt.Errorf("%w: %q is a %s", ErrWrongKind, end, n.Kind())
		}
	}
	g.Edges = append(g.Edges, e)
	return nil
}

// RemoveEdge deletes the edge with the given id.
func (g *Graph) RemoveEdge(id string) bool {
	for i, e := range g.Edges {
		if e.ID == id {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return true
		}
	}
	return false
}

// Move sets a node's position in its own frame: relative to its container
// for grouped operators, absolute otherwise.
func (g *Graph) Move(id string, pos definition.Position) error {
	n, ok := g.Node(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	switch t := n.(type) {
	case *ContainerNode:
		t.Position = pos
	case *OperatorNode:
		t.Position = pos
	}
	return nil
}

// Reparent moves an operator into container parent, or out of any container
// when parent is empty. abs is the operator's new absolute canvas position;
// it is stored relative to the new parent.
func (g *Graph) Reparent(id, parent string, abs definition.Position) error {
	i := g.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	op, ok := g.Nodes[i].(*OperatorNode)
	if !ok {
		return fmt.Errorf("%w: %q is not an operator", ErrWrongKind, id)
	}
	if parent == "" {
		op.Parent = ""
		op.Position = abs
		return nil
	}
	c, ok := g.Container(parent)
	if !ok {
		return fmt.Errorf("%w: container %q", ErrNodeNotFound, parent)
	}
	op.Parent = parent
	op.Position = definition.Position{X: abs.X - c.Position.X, Y: abs.Y - c.Position.Y}
	// Keep the child after its new parent.
	g.Nodes = append(append(g.Nodes[:i], g.Nodes[i+1:]...), op)
	return nil
}
