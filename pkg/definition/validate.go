package definition

import "fmt"

// Validate checks a definition for structural correctness and returns every
// issue found, not just the first.
func Validate(d *Definition) []Issue {
	var issues []Issue

	steps := map[string]bool{}
	ops := map[string]bool{}
	for _, s := range d.Steps {
		switch {
		case s.Key == "":
			issues = append(issues, Issue{Kind: IssueEmptyStepKey, Message: "step has no key"})
		case steps[s.Key]:
			issues = append(issues, Issue{Kind: IssueDuplicateStep, Subject: s.Key, Message: "step key used more than once"})
		}
		steps[s.Key] = true

		for _, op := range s.Operators {
			switch {
			case op.ID == "":
				issues = append(issues, Issue{Kind: IssueEmptyOperatorID, Subject: s.Key, Message: "operator in step has no id"})
				continue
			case op.ID == InputSentinel:
				issues = append(issues, Issue{Kind: IssueDuplicateOperator, Subject: op.ID, Message: "operator id is reserved for pipeline input"})
			case ops[op.ID]:
				issues = append(issues, Issue{Kind: IssueDuplicateOperator, Subject: op.ID, Message: "operator id used more than once"})
			}
			ops[op.ID] = true
		}
	}

	for _, s := range d.Steps {
		for _, op := range s.Operators {
			if op.ID != "" && steps[op.ID] {
				issues = append(issues, Issue{Kind: IssueDuplicateOperator, Subject: op.ID, Message: "operator id collides with a step key"})
			}
		}
	}

	edges := map[string]bool{}
	for _, e := range d.Edges {
		if e.ID != "" && edges[e.ID] {
			issues = append(issues, Issue{Kind: IssueDuplicateEdge, Subject: e.ID, Message: "edge id used more than once"})
		}
		edges[e.ID] = true

		if !e.IsBoundary() && !ops[e.SourceOp] {
			issues = append(issues, Issue{
				Kind:    IssueDanglingEdge,
				Subject: e.ID,
				Message: fmt.Sprintf("edge references unknown source operator %q", e.SourceOp),
			})
		}
		if !ops[e.TargetOp] {
			issues = append(issues, Issue{
				Kind:    IssueDanglingEdge,
				Subject: e.ID,
				Message: fmt.Sprintf("edge references unknown target operator %q", e.TargetOp),
			})
		}
	}

	return issues
}

// ValidateErr calls Validate and returns nil if there are no issues, or a
// *StructuralError listing all of them.
func ValidateErr(d *Definition) error {
	issues := Validate(d)
	if len(issues) == 0 {
		return nil
	}
	return &StructuralError{Issues: issues}
}
