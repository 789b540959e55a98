package approve

import (
	"time"
)

// StatusEntry is one row of the combined decision/pending view: audit-derived
// entries first (decisions already made), queue-derived pending entries after.
type StatusEntry struct {
	Timestamp time.Time `json:"timestamp"`
	PaneID    string    `json:"pane_id"`
	ToolName  string    `json:"tool_name"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id"`
}

// statusForAction maps a decided action to its status word.
func statusForAction(a Action) string {
	switch a {
	case ActionApprove:
		return "approved"
	case ActionDeny:
		return "denied"
	default:
		return "escalated"
	}
}

// GetStatusEntries merges audit entries and pending queue requests into one
// ordered view.
func GetStatusEntries(audit []AuditEntry, queue *Queue) []StatusEntry {
	var out []StatusEntry
	for _, e := range audit {
		out = append(out, StatusEntry{
			Timestamp: e.Timestamp,
			PaneID:    e.PaneID,
			ToolName:  e.ToolName,
			Status:    statusForAction(e.Action),
			Reason:    e.Reason,
			RequestID: e.RequestID,
		})
	}
	if queue != nil {
		for _, req := range queue.GetAll() {
			out = append(out, StatusEntry{
				Timestamp: req.Timestamp,
				PaneID:    req.PaneID,
				ToolName:  req.ToolName,
				Status:    "pending",
				RequestID: req.ID,
			})
		}
	}
	return out
}
