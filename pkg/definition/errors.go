package definition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStructural marks a definition whose steps, operators or edges do not fit
// together (duplicate keys, dangling edges, cycles).
var ErrStructural = errors.New("structural error")

// IssueKind classifies a structural or lint issue.
type IssueKind string

const (
	IssueEmptyStepKey      IssueKind = "empty_step_key"
	IssueDuplicateStep     IssueKind = "duplicate_step"
	IssueEmptyOperatorID   IssueKind = "empty_operator_id"
	IssueDuplicateOperator IssueKind = "duplicate_operator"
	IssueDuplicateEdge     IssueKind = "duplicate_edge"
	IssueDanglingEdge      IssueKind = "dangling_edge"
	IssueCycle             IssueKind = "cycle"
	IssueUnknownOperator   IssueKind = "unknown_operator"
	IssueUnknownPort       IssueKind = "unknown_port"
	IssuePortMismatch      IssueKind = "port_type_mismatch"
	IssueUnconnectedInput  IssueKind = "unconnected_input"
	IssueBoundaryEdge      IssueKind = "boundary_edge"
)

// Issue describes one problem found in a definition. Subject names the step
// key, operator id or edge id the issue is about.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Message string    `json:"message"`
}

func (i Issue) Error() string {
	if i.Subject != "" {
		return fmt.Sprintf("%s %q: %s", i.Kind, i.Subject, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Kind, i.Message)
}

// StructuralError bundles every issue found by Validate.
type StructuralError struct {
	Issues []Issue
}

func (e *StructuralError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.Error()
	}
	return fmt.Sprintf("pipeline definition invalid:\n  %s", strings.Join(msgs, "\n  "))
}

func (e *StructuralError) Unwrap() error { return ErrStructural }
