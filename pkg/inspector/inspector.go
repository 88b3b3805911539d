// Package inspector edits one node of a canvas at a time. It keeps a local
// draft of the node's label and config overrides; nothing reaches the canvas
// until Apply succeeds.
package inspector

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/canvas"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/graph"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// ErrInvalidDraft marks a draft that could not be parsed. The canvas is never
// touched when it is returned.
var ErrInvalidDraft = errors.New("invalid draft")

// ErrClosed is returned by draft operations while no node is open.
var ErrClosed = errors.New("inspector is closed")

// ErrLabelFixed is returned by SetLabel on an operator node. Operator labels
// follow the manifest and are not stored with the pipeline.
var ErrLabelFixed = errors.New("operator label is not editable")

// ValidationError reports why a config draft was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDraft }

// State is Closed or Open.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Draft is the editable copy of a node's attributes. Config is text in YAML
// or JSON form; it is parsed on Apply.
type Draft struct {
	Label  string
	Config string
}

// Ports is the read-only port listing of an operator node.
type Ports struct {
	Kind    manifest.Kind
	Inputs  []manifest.Port
	Outputs []manifest.Port
}

// Inspector follows the selection of one canvas.
type Inspector struct {
	c      *canvas.Canvas
	state  State
	nodeID string
	kind   graph.NodeKind
	draft  Draft
	ports  Ports
}

// New returns a closed inspector bound to c.
func New(c *canvas.Canvas) *Inspector {
	return &Inspector{c: c}
}

// State returns the current state.
func (i *Inspector) State() State { return i.state }

// NodeID returns the open node, or "".
func (i *Inspector) NodeID() string { return i.nodeID }

// Draft returns the current draft.
func (i *Inspector) Draft() Draft { return i.draft }

// Ports returns the resolved ports of the open operator node. Containers have
// none.
func (i *Inspector) Ports() Ports {
	return Ports{
		Kind:    i.ports.Kind,
		Inputs:  append([]manifest.Port(nil), i.ports.Inputs...),
		Outputs: append([]manifest.Port(nil), i.ports.Outputs...),
	}
}

// Open loads nodeID into a fresh draft, discarding any pending edits.
func (i *Inspector) Open(nodeID string) error {
	n, ok := i.c.Node(nodeID)
	if !ok {
		i.Close()
		return fmt.Errorf("inspect: %w: %q", graph.ErrNodeNotFound, nodeID)
	}
	i.state = Open
	i.nodeID = nodeID
	i.kind = n.Kind()
	i.ports = Ports{}
	switch t := n.(type) {
	case *graph.ContainerNode:
		i.draft = Draft{Label: t.Label}
	case *graph.OperatorNode:
		cfg, err := formatConfig(t.ConfigOverrides)
		if err != nil {
			i.Close()
			return fmt.Errorf("inspect %q: %w", nodeID, err)
		}
		i.draft = Draft{Label: t.Label, Config: cfg}
		i.ports = Ports{Kind: t.OperatorKind, Inputs: t.InputPorts, Outputs: t.OutputPorts}
	}
	return nil
}

// Close discards the draft.
func (i *Inspector) Close() {
	*i = Inspector{c: i.c}
}

// SetLabel edits the draft label of an open container.
func (i *Inspector) SetLabel(label string) error {
	if i.state != Open {
		return ErrClosed
	}
	if i.kind != graph.KindContainer {
		return fmt.Errorf("label %q: %w", i.nodeID, ErrLabelFixed)
	}
	i.draft.Label = label
	return nil
}

// SetConfig edits the draft config text. It is not parsed until Apply.
func (i *Inspector) SetConfig(text string) error {
	if i.state != Open {
		return ErrClosed
	}
	i.draft.Config = text
	return nil
}

// Apply parses the draft and sends it to the canvas. A malformed config draft
// returns a *ValidationError and leaves the canvas untouched; the draft stays
// open for correction.
func (i *Inspector) Apply() error {
	if i.state != Open {
		return ErrClosed
	}
	var p graph.Patch
	switch i.kind {
	case graph.KindContainer:
		label := i.draft.Label
		p = graph.ContainerPatch{Label: &label}
	default:
		cfg, err := ParseConfig(i.draft.Config)
		if err != nil {
			return err
		}
		p = graph.OperatorPatch{ConfigOverrides: cfg}
	}
	if err := i.c.UpdateNodeData(i.nodeID, p); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// Sync reconciles the inspector with the canvas selection: it opens the
// selected node, or closes when the selection is gone or the open node was
// deleted. Pending edits survive only while the same node stays selected.
func (i *Inspector) Sync() error {
	sel := i.c.Selected()
	switch {
	case sel == "":
		i.Close()
		return nil
	case i.state == Open && sel == i.nodeID:
		if _, ok := i.c.Node(sel); !ok {
			i.Close()
		}
		return nil
	default:
		return i.Open(sel)
	}
}

// Handle applies one canvas event. Selection changes are read back from the
// canvas, so events that arrive late cannot reopen a deleted node.
func (i *Inspector) Handle(e canvas.Event) error {
	switch e.Type {
	case canvas.EventDeselected, canvas.EventNodeRemoved:
		if e.NodeID == i.nodeID {
			i.Close()
		}
	case canvas.EventSelected, canvas.EventLoaded, canvas.EventCloned:
		return i.Sync()
	}
	return nil
}

// ParseConfig parses a config draft. YAML mappings and JSON objects are both
// accepted; an empty draft yields an empty map.
func ParseConfig(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]any{}, nil
	}
	var raw any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &ValidationError{Field: "config_overrides", Err: err}
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	m, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, &ValidationError{Field: "config_overrides", Err: fmt.Errorf("expected a mapping, got %T", raw)}
	}
	return m, nil
}

// normalize rewrites mappings with non-string keys, which yaml.v3 decodes as
// map[any]any, into string-keyed maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for j, e := range t {
			t[j] = normalize(e)
		}
		return t
	default:
		return v
	}
}

func formatConfig(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}
	return string(data), nil
}
