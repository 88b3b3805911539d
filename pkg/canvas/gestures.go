package canvas

import (
	"fmt"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/graph"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// Mutating gestures are silent no-ops on a read-only canvas: they return the
// zero value and a nil error. Errors are reserved for gestures that name
// nodes or edges the graph does not have.

// Connect adds an edge from sourcePort on source to targetPort on target and
// returns its id. Cycles and port types are not checked here; Save reports
// them as lint issues.
func (c *Canvas) Connect(source, sourcePort, target, targetPort string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return "", nil
	}
	e := graph.Edge{
		ID:         c.newID("e"),
		Source:     source,
		SourcePort: sourcePort,
		Target:     target,
		TargetPort: targetPort,
	}
	if err := c.graph.AddEdge(e); err != nil {
		return "", fmt.Errorf("connect %s -> %s: %w", source, target, err)
	}
	c.touch()
	c.log.Debug("connected", "edge", e.ID, "source", source, "target", target)
	c.emit(Event{Type: EventEdgeAdded, EdgeID: e.ID})
	return e.ID, nil
}

// Move sets a node's position in its own frame: relative to its container
// for grouped operators, absolute for containers and orphans.
func (c *Canvas) Move(id string, pos definition.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return nil
	}
	if err := c.graph.Move(id, pos); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	c.touch()
	c.emit(Event{Type: EventNodeMoved, NodeID: id})
	return nil
}

// Reparent drags an operator into container parent, or out of any container
// when parent is "". abs is the drop point in canvas coordinates. Both the
// old and the new container are resized to their child counts.
func (c *Canvas) Reparent(id, parent string, abs definition.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return nil
	}
	old := ""
	if op, ok := c.graph.Operator(id); ok {
		old = op.Parent
	}
	if err := c.graph.Reparent(id, parent, abs); err != nil {
		return fmt.Errorf("reparent: %w", err)
	}
	c.graph.Fit(old)
	c.graph.Fit(parent)
	c.touch()
	c.log.Debug("reparented", "node", id, "from", old, "to", parent)
	c.emit(Event{Type: EventNodeMoved, NodeID: id})
	return nil
}

// Delete removes a node and every edge touching it. Deleting a container
// leaves its operators in place as orphans.
func (c *Canvas) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return nil
	}
	parent := ""
	if op, ok := c.graph.Operator(id); ok {
		parent = op.Parent
	}
	removed, err := c.graph.RemoveNode(id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	c.graph.Fit(parent)
	c.touch()
	if c.selected == id {
		c.selected = ""
		c.emit(Event{Type: EventDeselected, NodeID: id})
	}
	c.log.Debug("deleted", "node", id, "edges", len(removed))
	c.emit(Event{Type: EventNodeRemoved, NodeID: id})
	for _, e := range removed {
		c.emit(Event{Type: EventEdgeRemoved, EdgeID: e})
	}
	return nil
}

// DeleteEdge removes one edge. It reports whether the edge existed.
func (c *Canvas) DeleteEdge(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return false
	}
	if !c.graph.RemoveEdge(id) {
		return false
	}
	c.touch()
	c.emit(Event{Type: EventEdgeRemoved, EdgeID: id})
	return true
}

// Drop places a new unparented operator for m at pos and returns its id.
func (c *Canvas) Drop(m manifest.Manifest, pos definition.Position) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return "", nil
	}
	if m.Key == "" {
		return "", fmt.Errorf("drop: %w: manifest has no key", manifest.ErrInvalidTransfer)
	}
	id := c.newID(m.Key)
	op := graph.NewOperatorNode(id, m, pos)
	if _, known := c.registry.Get(m.Key); !known {
		op.Resolved = false
	}
	if err := c.graph.AddNode(op); err != nil {
		return "", fmt.Errorf("drop: %w", err)
	}
	c.touch()
	c.log.Debug("dropped operator", "node", id, "operator", m.Key)
	c.emit(Event{Type: EventNodeAdded, NodeID: id})
	return id, nil
}

// DropTransfer decodes a drag payload produced by manifest.EncodeTransfer and
// drops the operator it carries.
func (c *Canvas) DropTransfer(blob []byte, pos definition.Position) (string, error) {
	m, err := manifest.DecodeTransfer(blob)
	if err != nil {
		return "", fmt.Errorf("drop: %w", err)
	}
	return c.Drop(m, pos)
}

// Group creates an empty container at pos and returns its id (the future
// step key).
func (c *Canvas) Group(label string, pos definition.Position) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return "", nil
	}
	id := c.newID("step")
	cn := &graph.ContainerNode{ID: id, Label: label, Position: pos, Size: graph.ContainerSize(0)}
	if err := c.graph.AddNode(cn); err != nil {
		return "", fmt.Errorf("group: %w", err)
	}
	c.touch()
	c.emit(Event{Type: EventNodeAdded, NodeID: id})
	return id, nil
}

// UpdateNodeData merges p into the node. The patch kind must match the node
// kind.
func (c *Canvas) UpdateNodeData(id string, p graph.Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return nil
	}
	if err := c.graph.Update(id, p); err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	c.touch()
	c.emit(Event{Type: EventNodeUpdated, NodeID: id})
	return nil
}

// Select marks id as the selected node. Selection never marks the canvas
// dirty and is allowed on read-only templates.
func (c *Canvas) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.graph.Node(id); !ok {
		return fmt.Errorf("select: %w: %q", graph.ErrNodeNotFound, id)
	}
	if c.selected == id {
		return nil
	}
	if c.selected != "" {
		c.emit(Event{Type: EventDeselected, NodeID: c.selected})
	}
	c.selected = id
	c.emit(Event{Type: EventSelected, NodeID: id})
	return nil
}

// Deselect clears the selection.
func (c *Canvas) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == "" {
		return
	}
	prev := c.selected
	c.selected = ""
	c.emit(Event{Type: EventDeselected, NodeID: prev})
}
