package graph

import (
	"fmt"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

// Patch is a partial update for one node kind. Nil fields are left alone.
type Patch interface {
	target() NodeKind
}

// ContainerPatch updates a container.
type ContainerPatch struct {
	Label *string
}

func (ContainerPatch) target() NodeKind { return KindContainer }

// OperatorPatch updates an operator node. A non-nil ConfigOverrides replaces
// the whole map; the inspector always sends the full parsed draft. Operator
// labels come from the manifest and are not stored in a definition, so they
// cannot be patched.
type OperatorPatch struct {
	ConfigOverrides map[string]any
}

func (OperatorPatch) target() NodeKind { return KindOperator }

func (p ContainerPatch) apply(c *ContainerNode) {
	if p.Label != nil {
		c.Label = *p.Label
	}
}

func (p OperatorPatch) apply(o *OperatorNode) {
	if p.ConfigOverrides != nil {
		o.ConfigOverrides = definition.CopyConfig(p.ConfigOverrides)
	}
}

// Update merges p into the node with the given id. A patch for the other
// node kind is rejected with ErrWrongKind.
func (g *Graph) Update(id string, p Patch) error {
	n, ok := g.Node(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if n.Kind() != p.target() {
		return fmt.Errorf("%w: %s patch for %s %q", ErrWrongKind, p.target(), n.Kind(), id)
	}
	switch pp := p.(type) {
	case ContainerPatch:
		pp.apply(n.(*ContainerNode))
	case *ContainerPatch:
		pp.apply(n.(*ContainerNode))
	case OperatorPatch:
		pp.apply(n.(*OperatorNode))
	case *OperatorPatch:
		pp.apply(n.(*OperatorNode))
	}
	return nil
}
