package approve

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/getgenie/genie/internal/monitor"
)

type approvalRecorder struct {
	mu    sync.Mutex
	panes []string
}

func (r *approvalRecorder) send(paneID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panes = append(r.panes, paneID)
	return nil
}

func (r *approvalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.panes)
}

func bashRequest(id, pane, cmd string) *PermissionRequest {
	return &PermissionRequest{
		ID:        id,
		ToolName:  "Bash",
		ToolInput: cmd,
		PaneID:    pane,
		Timestamp: time.Now(),
	}
}

func TestHandleRequestApprove(t *testing.T) {
	rec := &approvalRecorder{}
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	audit, err := OpenAuditLog(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	defer audit.Close()

	e := NewEngine(Config{
		Policy:       &Policy{Default: ActionEscalate, Allow: []Rule{{Tool: "Bash", Pattern: "go test*"}}},
		Audit:        audit,
		SendApproval: rec.send,
	})

	dec := e.HandleRequest(bashRequest("r1", "%5", "go test ./..."))
	if dec.Action != ActionApprove {
		t.Fatalf("action = %s, want approve", dec.Action)
	}
	if rec.count() != 1 {
		t.Fatalf("approval sent %d times, want 1", rec.count())
	}

	entries, err := ReadAuditLog(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit has %d entries, want 1", len(entries))
	}
	if entries[0].Action != ActionApprove || entries[0].RequestID != "r1" {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
}

func TestHandleRequestDebounce(t *testing.T) {
	rec := &approvalRecorder{}
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	audit, err := OpenAuditLog(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	defer audit.Close()

	e := NewEngine(Config{
		Policy:       &Policy{Allow: []Rule{{Tool: "*"}}},
		Audit:        audit,
		SendApproval: rec.send,
		Debounce:     100 * time.Millisecond,
	})

	first := e.HandleRequest(bashRequest("r1", "%5", "go test ./..."))
	second := e.HandleRequest(bashRequest("r2", "%5", "go test ./..."))
	if first.Action != ActionApprove || second.Action != ActionApprove {
		t.Fatalf("actions = %s, %s, want approve", first.Action, second.Action)
	}
	if second.Reason != "debounced" {
		t.Fatalf("second reason = %q, want debounced", second.Reason)
	}
	if rec.count() != 1 {
		t.Fatalf("approval sent %d times, want 1 (second debounced)", rec.count())
	}

	// A different pane is not debounced.
	third := e.HandleRequest(bashRequest("r3", "%6", "go test ./..."))
	if third.Reason == "debounced" {
		t.Fatal("different pane should not debounce")
	}

	entries, err := ReadAuditLog(auditPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit has %d entries, want 2 (debounced request not audited)", len(entries))
	}
}

func TestHandleRequestEscalateQueues(t *testing.T) {
	e := NewEngine(Config{Policy: &Policy{Default: ActionEscalate}})

	dec := e.HandleRequest(bashRequest("r1", "%5", "make deploy"))
	if dec.Action != ActionEscalate {
		t.Fatalf("action = %s, want escalate", dec.Action)
	}
	if e.Queue().Size() != 1 {
		t.Fatalf("queue size = %d, want 1", e.Queue().Size())
	}
	if got := e.Queue().Get("r1"); got == nil || got.ToolInput != "make deploy" {
		t.Fatalf("queued request = %+v", got)
	}
}

func TestManualApproveAndDeny(t *testing.T) {
	rec := &approvalRecorder{}
	e := NewEngine(Config{Policy: &Policy{Default: ActionEscalate}, SendApproval: rec.send})

	e.HandleRequest(bashRequest("r1", "%5", "make deploy"))
	e.HandleRequest(bashRequest("r2", "%6", "make release"))

	if !e.ManualApprove("r1") {
		t.Fatal("ManualApprove returned false for queued request")
	}
	if rec.count() != 1 {
		t.Fatalf("approval sent %d times, want 1", rec.count())
	}
	if !e.ManualDeny("r2") {
		t.Fatal("ManualDeny returned false for queued request")
	}
	if e.Queue().Size() != 0 {
		t.Fatalf("queue size = %d, want 0", e.Queue().Size())
	}
	if e.ManualApprove("r1") {
		t.Fatal("second ManualApprove should report missing request")
	}
}

func TestStopNeverStarted(t *testing.T) {
	e := NewEngine(Config{})
	counts := e.Stop()
	if counts != (Counts{}) {
		t.Fatalf("counts = %+v, want zero", counts)
	}
	// Repeat is safe too.
	_ = e.Stop()
}

func TestSetPolicyHotSwap(t *testing.T) {
	e := NewEngine(Config{Policy: &Policy{Default: ActionDeny}})
	if dec := e.ProcessRequest(bashRequest("r1", "%5", "ls")); dec.Action != ActionDeny {
		t.Fatalf("action = %s, want deny", dec.Action)
	}
	e.SetPolicy(&Policy{Default: ActionApprove})
	if dec := e.ProcessRequest(bashRequest("r2", "%5", "ls")); dec.Action != ActionApprove {
		t.Fatalf("action after swap = %s, want approve", dec.Action)
	}
	// Nil is ignored.
	e.SetPolicy(nil)
	if dec := e.ProcessRequest(bashRequest("r3", "%5", "ls")); dec.Action != ActionApprove {
		t.Fatalf("nil SetPolicy replaced policy, got %s", dec.Action)
	}
}

// permissionCapturer shows an idle prompt once, then a bash permission prompt
// forever.
type permissionCapturer struct {
	mu    sync.Mutex
	calls int
}

func (c *permissionCapturer) CapturePaneContent(paneID string, lines int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 1 {
		return "│ > │\n? for shortcuts\n", nil
	}
	return "⏺ Bash(go test ./...)\n\nDo you want to proceed?\n❯ 1. Yes\n  2. No\n", nil
}

func TestEngineStartHandlesPermissionEvents(t *testing.T) {
	drv := &permissionCapturer{}
	m := monitor.New(drv, "%9", monitor.Config{PollInterval: 5 * time.Millisecond})

	rec := &approvalRecorder{}
	e := NewEngine(Config{
		Policy:       &Policy{Allow: []Rule{{Tool: "Bash", Pattern: "go test*"}}},
		SendApproval: rec.send,
	})

	e.Start(m)
	m.Start()

	deadline := time.After(2 * time.Second)
	for rec.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for auto-approval")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.Stop()
	counts := e.Stop()
	if counts.Approved < 1 {
		t.Fatalf("counts = %+v, want at least one approval", counts)
	}
}

func TestGetStatusEntriesOrdering(t *testing.T) {
	auditEntries := []AuditEntry{
		{
			Timestamp: time.Now().Add(-time.Minute),
			PaneID:    "%5",
			ToolName:  "Bash",
			Action:    ActionApprove,
			Reason:    "allow rule",
			RequestID: "r1",
		},
	}
	q := NewQueue()
	q.Add(bashRequest("r2", "%6", "make deploy"))

	entries := GetStatusEntries(auditEntries, q)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Status != "approved" || entries[0].RequestID != "r1" {
		t.Fatalf("first entry = %+v, want approved r1", entries[0])
	}
	if entries[1].Status != "pending" || entries[1].RequestID != "r2" {
		t.Fatalf("second entry = %+v, want pending r2", entries[1])
	}
}

func TestQueueGetAllOrdering(t *testing.T) {
	q := NewQueue()
	base := time.Now()
	q.Add(&PermissionRequest{ID: "b", Timestamp: base.Add(time.Second)})
	q.Add(&PermissionRequest{ID: "a", Timestamp: base})
	q.Add(&PermissionRequest{ID: "c", Timestamp: base.Add(2 * time.Second)})

	all := q.GetAll()
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
		t.Fatalf("GetAll order wrong: %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}
	if q.Remove("missing") != nil {
		t.Fatal("Remove of missing id should return nil")
	}
}
