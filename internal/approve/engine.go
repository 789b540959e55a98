package approve

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getgenie/genie/internal/detect"
	"github.com/getgenie/genie/internal/monitor"
)

// DefaultDebounce is how long after an approval further permission events
// for the same pane are ignored. A single prompt can render across several
// poll frames; without the debounce the engine would confirm it twice.
const DefaultDebounce = 2 * time.Second

// Decision is the outcome of evaluating one request.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Counts are the cumulative decision counters returned by Stop.
type Counts struct {
	Approved  int `json:"approved"`
	Denied    int `json:"denied"`
	Escalated int `json:"escalated"`
}

// SendApprovalFunc performs the approval side effect, e.g. confirming the
// menu in the pane. Injected so tests and manual flows share it.
type SendApprovalFunc func(paneID string) error

// Config configures an Engine.
type Config struct {
	Policy *Policy
	Audit  *AuditLog
	// SendApproval confirms the prompt in a pane. Nil disables the side
	// effect (decisions are still recorded).
	SendApproval SendApprovalFunc
	// Debounce overrides DefaultDebounce when positive.
	Debounce time.Duration
	// SessionID tags the requests this engine creates.
	SessionID string
}

// Engine subscribes to permission events across registered monitors,
// evaluates policy, records every decision, and exposes a queue of escalated
// requests for manual override.
type Engine struct {
	cfg      Config
	debounce time.Duration
	queue    *Queue

	mu           sync.Mutex
	started      bool
	counts       Counts
	lastApproval map[string]time.Time
	cancels      []func()
	wg           sync.WaitGroup
}

// NewEngine creates an engine. The policy may be nil, in which case every
// request escalates.
func NewEngine(cfg Config) *Engine {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if cfg.Policy == nil {
		cfg.Policy = &Policy{Default: ActionEscalate}
	}
	return &Engine{
		cfg:          cfg,
		debounce:     debounce,
		queue:        NewQueue(),
		lastApproval: make(map[string]time.Time),
	}
}

// Queue returns the pending-request queue.
func (e *Engine) Queue() *Queue { return e.queue }

// SetPolicy swaps the active policy (used by the config hot-reload watcher).
func (e *Engine) SetPolicy(p *Policy) {
	if p == nil {
		return
	}
	e.mu.Lock()
	e.cfg.Policy = p
	e.mu.Unlock()
}

// Start subscribes to permission events from the given monitors. Calling
// Start on a started engine adds the new monitors without disturbing
// existing subscriptions.
func (e *Engine) Start(monitors ...*monitor.Monitor) {
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()

	for _, m := range monitors {
		events, cancel := m.Subscribe()
		e.mu.Lock()
		e.cancels = append(e.cancels, cancel)
		e.mu.Unlock()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for ev := range events {
				if ev.Type != monitor.EventPermission {
					continue
				}
				e.handlePermissionEvent(ev)
			}
		}()
	}
}

// Stop unsubscribes from all monitors and returns the cumulative counts.
// Safe to call on a never-started engine or repeatedly.
func (e *Engine) Stop() Counts {
	e.mu.Lock()
	cancels := e.cancels
	e.cancels = nil
	e.started = false
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

// ProcessRequest evaluates policy for a request without side effects.
func (e *Engine) ProcessRequest(req *PermissionRequest) Decision {
	e.mu.Lock()
	policy := e.cfg.Policy
	e.mu.Unlock()

	action, reason := policy.Evaluate(req.ToolName, req.ToolInput)
	return Decision{Action: action, Reason: reason}
}

// HandleRequest evaluates and applies a decision: audit entry, approval side
// effect, counters, and escalation queueing. Approvals are debounced per
// pane.
func (e *Engine) HandleRequest(req *PermissionRequest) Decision {
	dec := e.ProcessRequest(req)

	switch dec.Action {
	case ActionApprove:
		e.mu.Lock()
		last, ok := e.lastApproval[req.PaneID]
		if ok && time.Since(last) < e.debounce {
			e.mu.Unlock()
			// Same prompt re-rendered; already confirmed.
			return Decision{Action: ActionApprove, Reason: "debounced"}
		}
		e.lastApproval[req.PaneID] = time.Now()
		e.counts.Approved++
		e.mu.Unlock()

		e.audit(req, dec)
		if e.cfg.SendApproval != nil {
			if err := e.cfg.SendApproval(req.PaneID); err != nil {
				slog.Default().Warn("send approval failed", "pane", req.PaneID, "error", err)
			}
		}

	case ActionDeny:
		e.mu.Lock()
		e.counts.Denied++
		e.mu.Unlock()
		e.audit(req, dec)

	default:
		e.mu.Lock()
		e.counts.Escalated++
		e.mu.Unlock()
		e.audit(req, dec)
		e.queue.Add(req)
	}
	return dec
}

// ManualApprove removes the request from the queue and performs the approval
// side effect.
func (e *Engine) ManualApprove(id string) bool {
	req := e.queue.Remove(id)
	if req == nil {
		return false
	}
	if e.cfg.SendApproval != nil {
		if err := e.cfg.SendApproval(req.PaneID); err != nil {
			slog.Default().Warn("manual approval send failed", "pane", req.PaneID, "error", err)
		}
	}
	return true
}

// ManualDeny removes the request from the queue.
func (e *Engine) ManualDeny(id string) bool {
	return e.queue.Remove(id) != nil
}

func (e *Engine) audit(req *PermissionRequest, dec Decision) {
	if e.cfg.Audit == nil {
		return
	}
	err := e.cfg.Audit.Append(AuditEntry{
		Timestamp: time.Now().UTC(),
		PaneID:    req.PaneID,
		ToolName:  req.ToolName,
		Action:    dec.Action,
		Reason:    dec.Reason,
		TaskID:    req.TaskID,
		RequestID: req.ID,
	})
	if err != nil {
		slog.Default().Warn("audit append failed", "request", req.ID, "error", err)
	}
}

// handlePermissionEvent turns a monitor permission event into a request.
func (e *Engine) handlePermissionEvent(ev monitor.Event) {
	req := &PermissionRequest{
		ID:        uuid.NewString(),
		PaneID:    ev.PaneID,
		SessionID: e.cfg.SessionID,
		Timestamp: ev.Timestamp,
	}
	if ev.State != nil && ev.State.Permission != nil {
		p := ev.State.Permission
		switch p.Kind {
		case detect.PermissionBash:
			req.ToolName = "Bash"
			req.ToolInput = p.Command
		default:
			req.ToolName = "Edit"
			req.ToolInput = p.File
		}
	} else {
		req.ToolName = "unknown"
	}
	e.HandleRequest(req)
}
