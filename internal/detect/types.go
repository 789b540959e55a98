// Package detect classifies captured pane text into agent activity states.
//
// Classification is heuristic: the agent process exposes no structured API, so
// we pattern-match the rendered terminal output. Consumers must tolerate
// StateUnknown and low-confidence results.
package detect

// State is the inferred activity state of an agent pane.
type State string

const (
	StateWorking    State = "working"
	StateToolUse    State = "tool_use"
	StateIdle       State = "idle"
	StatePermission State = "permission"
	StateQuestion   State = "question"
	StateError      State = "error"
	StateComplete   State = "complete"
	StateUnknown    State = "unknown"
)

// Terminal reports whether the state represents a finished turn.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// PermissionKind distinguishes what a permission prompt is asking about.
type PermissionKind string

const (
	PermissionBash PermissionKind = "bash"
	PermissionFile PermissionKind = "file"
)

// PermissionDetails carries structured fields extracted from a permission
// confirmation menu.
type PermissionDetails struct {
	Kind    PermissionKind `json:"kind"`
	Command string         `json:"command,omitempty"`
	File    string         `json:"file,omitempty"`
}

// QuestionDetails carries structured fields extracted from a multi-option
// question menu.
type QuestionDetails struct {
	Options  []string `json:"options"`
	PlanFile string   `json:"plan_file,omitempty"`
}

// DetailPlanApproval tags a question that is asking for plan approval.
const DetailPlanApproval = "plan_approval"

// Result is the outcome of classifying one pane snapshot.
type Result struct {
	State      State              `json:"state"`
	Confidence float64            `json:"confidence"`
	Detail     string             `json:"detail,omitempty"`
	Permission *PermissionDetails `json:"permission,omitempty"`
	Question   *QuestionDetails   `json:"question,omitempty"`
}
