// Package task tracks the units of work that workers are assigned to. The
// core only depends on the Backend interface; the default implementation is
// a local JSON file, but an external issue tracker can stand in with the
// same semantics.
package task

import (
	"errors"
	"time"
)

// Status is a task's lifecycle stage.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClaimed Status = "claimed"
	StatusDone    Status = "done"
)

// ErrTaskNotFound is returned for operations on unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// Task is one externally tracked unit of work.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Assignee    string    `json:"assignee,omitempty"`
	DependsOn   []string  `json:"depends_on,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueueView splits open tasks by readiness: Ready tasks have no unfinished
// dependencies, Blocked tasks are waiting on at least one.
type QueueView struct {
	Ready   []*Task `json:"ready"`
	Blocked []*Task `json:"blocked"`
}

// Backend is the task-tracker collaborator. Get returns (nil, nil) for an
// unknown id so callers can distinguish absence from failure.
type Backend interface {
	Get(id string) (*Task, error)
	Create(t *Task) error
	Update(id string, fn func(*Task)) (*Task, error)
	Claim(id, assignee string) (*Task, error)
	MarkDone(id string) (*Task, error)
	Queue() (*QueueView, error)
}
