// Package worker tracks every agent process genie manages: one durable record
// per worker, with a small lifecycle state machine persisted to workers.json.
package worker

import (
	"fmt"
	"time"
)

// State is a worker's lifecycle state.
type State string

const (
	StateSpawning   State = "spawning"
	StateWorking    State = "working"
	StateIdle       State = "idle"
	StatePermission State = "permission"
	StateQuestion   State = "question"
	StateError      State = "error"
	StateDone       State = "done"
)

// Terminal reports whether the state ends the lifecycle. An errored worker
// can only leave via an explicit Retry.
func (s State) Terminal() bool {
	return s == StateError || s == StateDone
}

// validTransitions is the lifecycle state machine:
// spawning → working; working ⇄ idle; working → permission/question → working;
// working → error (terminal unless retried); working → done (terminal).
var validTransitions = map[State][]State{
	StateSpawning:   {StateWorking, StateError},
	StateWorking:    {StateIdle, StatePermission, StateQuestion, StateError, StateDone},
	StateIdle:       {StateWorking, StateDone},
	StatePermission: {StateWorking},
	StateQuestion:   {StateWorking},
	StateError:      {},
	StateDone:       {},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Worker is one agent process bound to a task and a pane.
type Worker struct {
	ID          string `json:"id"`
	PaneID      string `json:"pane_id"`
	SessionName string `json:"session_name"`
	WindowID    string `json:"window_id,omitempty"`
	// SubPaneIDs are secondary panes owned by this worker, addressable as
	// <workerID>:<index> with index starting at 1.
	SubPaneIDs   []string  `json:"sub_pane_ids,omitempty"`
	TaskID       string    `json:"task_id"`
	Role         string    `json:"role,omitempty"`
	CustomName   string    `json:"custom_name,omitempty"`
	WorktreePath string    `json:"worktree_path,omitempty"`
	State        State     `json:"state"`
	LastStateAt  time.Time `json:"last_state_change_at"`
	StartedAt    time.Time `json:"started_at"`
	RepoPath     string    `json:"repo_path"`
	ResumeHandle string    `json:"resume_handle,omitempty"`
}

// SubPane returns the worker's n-th sub-pane (1-based).
func (w *Worker) SubPane(n int) (string, error) {
	if n < 1 || n > len(w.SubPaneIDs) {
		return "", fmt.Errorf("worker %s has no sub-pane %d", w.ID, n)
	}
	return w.SubPaneIDs[n-1], nil
}

// FormatElapsed renders the time since start as "Xh Ym", "Xm", or "<1m".
func FormatElapsed(start, now time.Time) string {
	d := now.Sub(start)
	if d < time.Minute {
		return "<1m"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
