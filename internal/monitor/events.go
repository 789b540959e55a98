// Package monitor polls agent panes and turns raw pane text into a typed
// event stream.
package monitor

import (
	"time"

	"github.com/getgenie/genie/internal/detect"
)

// EventType tags one monitor event.
type EventType string

const (
	EventOutput      EventType = "output"
	EventStateChange EventType = "state_change"
	EventSilence     EventType = "silence"
	EventActivity    EventType = "activity"
	EventPermission  EventType = "permission"
	EventQuestion    EventType = "question"
	EventError       EventType = "error"
	EventComplete    EventType = "complete"
	EventPollError   EventType = "poll_error"
)

// Event is one observation from a pane's poll loop. Within one monitor,
// events are strictly time-ordered; across monitors there is no ordering
// guarantee.
type Event struct {
	Type      EventType      `json:"type"`
	PaneID    string         `json:"pane_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     *detect.Result `json:"state,omitempty"`
	// NewOutput is the text added since the previous snapshot, set on
	// output/activity events.
	NewOutput string `json:"new_output,omitempty"`
	// Silence is how long the pane has been unchanged, set on silence events.
	Silence time.Duration `json:"silence,omitempty"`
	// Err describes a capture failure, set on poll_error events.
	Err string `json:"error,omitempty"`
}
