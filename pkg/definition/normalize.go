package definition

import "sort"

// Normalized returns a canonical copy of the definition for comparison:
//   - steps are sorted by key
//   - edges are sorted by id, then source, then target
//   - nil slices and config override maps become empty ones
//
// Operator order inside a step is meaningful and is left untouched.
func (d *Definition) Normalized() *Definition {
	out := d.filled()
	sort.SliceStable(out.Steps, func(i, j int) bool {
		return out.Steps[i].Key < out.Steps[j].Key
	})
	sort.SliceStable(out.Edges, func(i, j int) bool {
		a, b := out.Edges[i], out.Edges[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.SourceOp != b.SourceOp {
			return a.SourceOp < b.SourceOp
		}
		return a.TargetOp < b.TargetOp
	})
	return out
}

// filled returns a deep copy with every nil slice and map replaced by an empty
// one, so encoders emit [] and {} instead of null.
func (d *Definition) filled() *Definition {
	out := d.Clone()
	for i := range out.Steps {
		if out.Steps[i].Operators == nil {
			out.Steps[i].Operators = []OperatorRef{}
		}
	}
	return out
}
