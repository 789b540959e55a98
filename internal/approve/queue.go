package approve

import (
	"sort"
	"sync"
	"time"
)

// PermissionRequest is one pending tool-permission prompt. It exists from
// creation until a terminal decision is recorded; at most one decision per id.
type PermissionRequest struct {
	ID        string    `json:"id"`
	ToolName  string    `json:"tool_name"`
	ToolInput string    `json:"tool_input,omitempty"`
	PaneID    string    `json:"pane_id"`
	TaskID    string    `json:"task_id,omitempty"`
	SessionID string    `json:"session_id"`
	Cwd       string    `json:"cwd"`
	Timestamp time.Time `json:"timestamp"`
}

// Queue holds all not-yet-decided permission requests keyed by id, for manual
// inspection and override.
type Queue struct {
	mu       sync.Mutex
	requests map[string]*PermissionRequest
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{requests: make(map[string]*PermissionRequest)}
}

// Add inserts a request. Re-adding the same id overwrites.
func (q *Queue) Add(req *PermissionRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests[req.ID] = req
}

// Get returns the request with the id, or nil.
func (q *Queue) Get(id string) *PermissionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.requests[id]
}

// Remove deletes the request, returning it if present. Manual approve/deny
// flows call Remove; the confirmation side effect is the caller's business.
func (q *Queue) Remove(id string) *PermissionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	req := q.requests[id]
	delete(q.requests, id)
	return req
}

// GetAll returns all pending requests ordered by timestamp.
func (q *Queue) GetAll() []*PermissionRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*PermissionRequest, 0, len(q.requests))
	for _, req := range q.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Size returns how many requests are pending.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
