// Package batch admits queued work items into execution under a concurrency
// ceiling, persisting every batch to its own JSON file.
package batch

import (
	"time"
)

// Status is a batch's overall status.
type Status string

const (
	StatusActive    Status = "active"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// WorkerStatus is the status of one batch item's worker slot.
type WorkerStatus string

const (
	WorkerQueued    WorkerStatus = "queued"
	WorkerSpawning  WorkerStatus = "spawning"
	WorkerRunning   WorkerStatus = "running"
	WorkerWaiting   WorkerStatus = "waiting"
	WorkerComplete  WorkerStatus = "complete"
	WorkerFailed    WorkerStatus = "failed"
	WorkerCancelled WorkerStatus = "cancelled"
)

// TerminalWorker reports whether the status ends a worker slot's life. The
// controller never revisits terminal slots.
func TerminalWorker(s WorkerStatus) bool {
	return s == WorkerComplete || s == WorkerFailed || s == WorkerCancelled
}

// Item is one unit of work submitted in a batch.
type Item struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id,omitempty"`
	Title  string `json:"title,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// BatchWorker tracks the execution slot for one item.
type BatchWorker struct {
	Status      WorkerStatus `json:"status"`
	PaneID      string       `json:"pane_id,omitempty"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Options configures how a batch runs.
type Options struct {
	// MaxConcurrent caps how many items may be spawning or running at once.
	// Zero means unlimited.
	MaxConcurrent int `json:"max_concurrent,omitempty"`
	// AutoApprove enables the auto-approve engine for this batch's workers.
	AutoApprove bool `json:"auto_approve"`
}

// Batch is one submitted set of items with per-item worker slots.
type Batch struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	Status    Status                  `json:"status"`
	Items     []Item                  `json:"items"`
	Workers   map[string]*BatchWorker `json:"workers"`
	Options   Options                 `json:"options"`
	// Version counts persisted writes; Save rejects stale copies.
	Version int `json:"version"`
}

// worker returns the slot for an item, treating a missing entry as queued.
func (b *Batch) worker(itemID string) *BatchWorker {
	if w, ok := b.Workers[itemID]; ok {
		return w
	}
	return &BatchWorker{Status: WorkerQueued}
}

// ActiveCount counts items currently consuming a concurrency slot. Spawning
// counts: the item is not yet running but already holds the slot.
func (b *Batch) ActiveCount() int {
	n := 0
	for _, w := range b.Workers {
		if w.Status == WorkerSpawning || w.Status == WorkerRunning {
			n++
		}
	}
	return n
}
