// Package definition holds the canonical, storage-ready pipeline document: ordered
// Steps of operator references plus the data-flow Edges between operators.
package definition

import "time"

// InputSentinel is the reserved edge source naming an external pipeline input.
// It never refers to an operator.
const InputSentinel = "__input__"

// CustomStepKey and CustomStepLabel name the synthetic step that collects
// operators not placed in any step.
const (
	CustomStepKey   = "custom"
	CustomStepLabel = "Custom Steps"
)

// Default port names used when an edge leaves its ports unset.
const (
	DefaultSourcePort = "output"
	DefaultTargetPort = "input"
)

// Position is an (x, y) anchor on the editor canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// OperatorRef is one usage of a registered operator inside a Step.
// ID is unique across the whole pipeline and doubles as the graph node id.
type OperatorRef struct {
	ID              string         `json:"id" yaml:"id"`
	OperatorKey     string         `json:"operator_key" yaml:"operator_key"`
	ConfigOverrides map[string]any `json:"config_overrides" yaml:"config_overrides"`
}

// Step is a named, ordered group of operators. Key is unique and stable.
type Step struct {
	Key       string        `json:"key" yaml:"key"`
	Label     string        `json:"label" yaml:"label"`
	Operators []OperatorRef `json:"operators" yaml:"operators"`
	Position  Position      `json:"position" yaml:"position"`
}

// Edge carries data from one operator output port to another operator input port.
type Edge struct {
	ID         string `json:"id" yaml:"id"`
	SourceOp   string `json:"source_op" yaml:"source_op"`
	SourcePort string `json:"source_port" yaml:"source_port"`
	TargetOp   string `json:"target_op" yaml:"target_op"`
	TargetPort string `json:"target_port" yaml:"target_port"`
}

// IsBoundary reports whether the edge is fed by the external pipeline input.
func (e Edge) IsBoundary() bool { return e.SourceOp == InputSentinel }

// Definition is the full pipeline document stored inside a Template.
type Definition struct {
	Steps []Step `json:"steps" yaml:"steps"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Template wraps a Definition with identity and ownership. System templates
// are read-only and can only be edited through a clone.
type Template struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	IsSystem    bool       `json:"is_system" yaml:"is_system"`
	Definition  Definition `json:"definition" yaml:"definition"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// OperatorCount returns the number of operator references across all steps.
func (d *Definition) OperatorCount() int {
	n := 0
	for _, s := range d.Steps {
		n += len(s.Operators)
	}
	return n
}

// FindOperator returns the operator with the given id and the key of the step
// that owns it.
func (d *Definition) FindOperator(id string) (OperatorRef, string, bool) {
	for _, s := range d.Steps {
		for _, op := range s.Operators {
			if op.ID == id {
				return op, s.Key, true
			}
		}
	}
	return OperatorRef{}, "", false
}

// Clone returns a deep copy of the definition. Config override values that are
// maps or slices are copied recursively.
func (d *Definition) Clone() *Definition {
	out := &Definition{
		Steps: make([]Step, len(d.Steps)),
		Edges: make([]Edge, len(d.Edges)),
	}
	for i, s := range d.Steps {
		ops := make([]OperatorRef, len(s.Operators))
		for j, op := range s.Operators {
			ops[j] = OperatorRef{
				ID:              op.ID,
				OperatorKey:     op.OperatorKey,
				ConfigOverrides: CopyConfig(op.ConfigOverrides),
			}
		}
		out.Steps[i] = Step{Key: s.Key, Label: s.Label, Operators: ops, Position: s.Position}
	}
	copy(out.Edges, d.Edges)
	return out
}

// CopyConfig deep-copies a config override map. A nil map yields an empty one.
func CopyConfig(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyConfig(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyValue(e)
		}
		return s
	default:
		return v
	}
}
