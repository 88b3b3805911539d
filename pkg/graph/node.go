// Package graph is the editable visual projection of a pipeline definition:
// step containers, operator nodes and the connections between them. Expand
// builds it from a definition and Collapse turns it back into one.
package graph

import (
	"encoding/json"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// NodeKind tags the two node variants.
type NodeKind string

const (
	KindContainer NodeKind = "container"
	KindOperator  NodeKind = "operator"
)

// Node is either a *ContainerNode or an *OperatorNode.
type Node interface {
	NodeID() string
	Kind() NodeKind
	clone() Node
}

// Size is the width and height of a container.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ContainerNode is the visual form of a Step. Its ID is the step key and its
// position is absolute.
type ContainerNode struct {
	ID       string              `json:"id"`
	Label    string              `json:"label"`
	Position definition.Position `json:"position"`
	Size     Size                `json:"size"`
}

func (c *ContainerNode) NodeID() string { return c.ID }
func (c *ContainerNode) Kind() NodeKind { return KindContainer }

func (c *ContainerNode) clone() Node {
	cp := *c
	return &cp
}

// MarshalJSON adds the node kind as a "type" field.
func (c *ContainerNode) MarshalJSON() ([]byte, error) {
	type alias ContainerNode
	return json.Marshal(struct {
		Type NodeKind `json:"type"`
		*alias
	}{KindContainer, (*alias)(c)})
}

// OperatorNode is the visual form of an OperatorRef. Position is relative to
// the parent container when Parent is set, absolute otherwise. Kind and ports
// are resolved from the manifest registry; Resolved is false when the
// operator key was unknown.
type OperatorNode struct {
	ID              string              `json:"id"`
	Parent          string              `json:"parent,omitempty"`
	Position        definition.Position `json:"position"`
	OperatorKey     string              `json:"operator_key"`
	Label           string              `json:"label"`
	OperatorKind    manifest.Kind       `json:"kind"`
	InputPorts      []manifest.Port     `json:"input_ports"`
	OutputPorts     []manifest.Port     `json:"output_ports"`
	ConfigOverrides map[string]any      `json:"config_overrides"`
	Resolved        bool                `json:"resolved"`
}

func (o *OperatorNode) NodeID() string { return o.ID }
func (o *OperatorNode) Kind() NodeKind { return KindOperator }

func (o *OperatorNode) clone() Node {
	cp := *o
	cp.InputPorts = append([]manifest.Port(nil), o.InputPorts...)
	cp.OutputPorts = append([]manifest.Port(nil), o.OutputPorts...)
	cp.ConfigOverrides = definition.CopyConfig(o.ConfigOverrides)
	return &cp
}

// MarshalJSON adds the node kind as a "type" field.
func (o *OperatorNode) MarshalJSON() ([]byte, error) {
	type alias OperatorNode
	return json.Marshal(struct {
		Type NodeKind `json:"type"`
		*alias
	}{KindOperator, (*alias)(o)})
}

// NewOperatorNode builds an unparented node for m at an absolute position.
func NewOperatorNode(id string, m manifest.Manifest, pos definition.Position) *OperatorNode {
	return &OperatorNode{
		ID:              id,
		Position:        pos,
		OperatorKey:     m.Key,
		Label:           m.Name,
		OperatorKind:    m.Kind,
		InputPorts:      append([]manifest.Port{}, m.InputPorts...),
		OutputPorts:     append([]manifest.Port{}, m.OutputPorts...),
		ConfigOverrides: map[string]any{},
		Resolved:        true,
	}
}

// Edge is a visual connection. Animated is rendering state only and never
// reaches the definition.
type Edge struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourcePort string `json:"source_port"`
	Target     string `json:"target"`
	TargetPort string `json:"target_port"`
	Animated   bool   `json:"animated,omitempty"`
}

// Touches reports whether nodeID is either endpoint of e.
func (e Edge) Touches(nodeID string) bool { return e.Source == nodeID || e.Target == nodeID }
