package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/getgenie/genie/internal/detect"
)

// CompletionResult reports the outcome of one completion-detection run.
type CompletionResult struct {
	Complete bool          `json:"complete"`
	Reason   string        `json:"reason"`
	Latency  time.Duration `json:"latency"`
	State    detect.State  `json:"state"`
}

// CompletionMethod decides when an agent's current turn has finished. Detect
// races against the timeout; on timeout it returns Complete=false with the
// last observed state.
type CompletionMethod interface {
	Name() string
	Detect(ctx context.Context, m *Monitor, timeout time.Duration) (CompletionResult, error)
}

// DefaultMethod is the preset used when no method name is given.
const DefaultMethod = "silence"

// DefaultSilenceThreshold is the silence duration the "silence" preset
// requires before declaring a turn complete.
const DefaultSilenceThreshold = 30 * time.Second

// silenceSuffix parses custom thresholds out of method names like
// "silence-500ms" or "silence-45s".
var silenceSuffix = regexp.MustCompile(`^silence-(\d+)(ms|s)$`)

// ResolveMethod maps a method name to an implementation. Empty name resolves
// to the default preset.
func ResolveMethod(name string) (CompletionMethod, error) {
	switch name {
	case "", DefaultMethod:
		return &SilenceMethod{Threshold: DefaultSilenceThreshold}, nil
	case "idle":
		return &IdleMethod{}, nil
	}
	if m := silenceSuffix.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid silence threshold in %q", name)
		}
		unit := time.Second
		if m[2] == "ms" {
			unit = time.Millisecond
		}
		return &SilenceMethod{Threshold: time.Duration(n) * unit}, nil
	}
	return nil, fmt.Errorf("unknown completion method %q", name)
}

// SilenceMethod declares completion once the pane has been unchanged for
// Threshold.
type SilenceMethod struct {
	Threshold time.Duration
}

// Name implements CompletionMethod.
func (s *SilenceMethod) Name() string {
	if s.Threshold == DefaultSilenceThreshold {
		return "silence"
	}
	if s.Threshold%time.Second == 0 {
		return fmt.Sprintf("silence-%ds", int(s.Threshold/time.Second))
	}
	return fmt.Sprintf("silence-%dms", int(s.Threshold/time.Millisecond))
}

// Detect implements CompletionMethod.
func (s *SilenceMethod) Detect(ctx context.Context, m *Monitor, timeout time.Duration) (CompletionResult, error) {
	start := time.Now()
	events, cancel := m.Subscribe()
	defer cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return CompletionResult{Complete: false, Reason: "cancelled", Latency: time.Since(start), State: m.LastState()}, ctx.Err()
		case <-deadline.C:
			return CompletionResult{Complete: false, Reason: "timeout", Latency: time.Since(start), State: m.LastState()}, nil
		case ev, ok := <-events:
			if !ok {
				return CompletionResult{Complete: false, Reason: "monitor stopped", Latency: time.Since(start), State: m.LastState()}, nil
			}
			if ev.Type == EventPollError {
				return CompletionResult{Complete: false, Reason: "pane gone", Latency: time.Since(start), State: m.LastState()}, nil
			}
			if ev.Type == EventSilence && ev.Silence >= s.Threshold {
				return CompletionResult{
					Complete: true,
					Reason:   fmt.Sprintf("silent for %s", ev.Silence.Round(time.Millisecond)),
					Latency:  time.Since(start),
					State:    stateOf(ev),
				}, nil
			}
		}
	}
}

// IdleMethod declares completion once the classified state is idle.
type IdleMethod struct{}

// Name implements CompletionMethod.
func (i *IdleMethod) Name() string { return "idle" }

// Detect implements CompletionMethod.
func (i *IdleMethod) Detect(ctx context.Context, m *Monitor, timeout time.Duration) (CompletionResult, error) {
	start := time.Now()

	// The pane may already be at rest before any event fires.
	if st := m.LastState(); st == detect.StateIdle {
		return CompletionResult{Complete: true, Reason: "already idle", Latency: time.Since(start), State: st}, nil
	}

	events, cancel := m.Subscribe()
	defer cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return CompletionResult{Complete: false, Reason: "cancelled", Latency: time.Since(start), State: m.LastState()}, ctx.Err()
		case <-deadline.C:
			return CompletionResult{Complete: false, Reason: "timeout", Latency: time.Since(start), State: m.LastState()}, nil
		case ev, ok := <-events:
			if !ok {
				return CompletionResult{Complete: false, Reason: "monitor stopped", Latency: time.Since(start), State: m.LastState()}, nil
			}
			if ev.Type == EventPollError {
				return CompletionResult{Complete: false, Reason: "pane gone", Latency: time.Since(start), State: m.LastState()}, nil
			}
			if stateOf(ev) == detect.StateIdle {
				return CompletionResult{Complete: true, Reason: "agent idle", Latency: time.Since(start), State: detect.StateIdle}, nil
			}
		}
	}
}

func stateOf(ev Event) detect.State {
	if ev.State != nil {
		return ev.State.State
	}
	return detect.StateUnknown
}
