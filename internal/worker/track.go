package worker

import (
	"log/slog"

	"github.com/getgenie/genie/internal/detect"
	"github.com/getgenie/genie/internal/monitor"
)

// StateFor maps a classified pane state onto the worker lifecycle. Unknown
// classifications have no lifecycle meaning and report ok false.
func StateFor(s detect.State) (State, bool) {
	switch s {
	case detect.StateWorking, detect.StateToolUse:
		return StateWorking, true
	case detect.StateIdle:
		return StateIdle, true
	case detect.StatePermission:
		return StatePermission, true
	case detect.StateQuestion:
		return StateQuestion, true
	case detect.StateError:
		return StateError, true
	case detect.StateComplete:
		return StateDone, true
	default:
		return "", false
	}
}

// Track mirrors a monitor's event stream into the registry: every
// state_change moves the pane's owning worker through the lifecycle, and a
// poll_error unregisters it. Panes with no registered worker are ignored.
// The returned stop func unsubscribes and waits for the mirror to drain.
func (r *Registry) Track(m *monitor.Monitor) func() {
	ch, cancel := m.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			switch ev.Type {
			case monitor.EventStateChange:
				if ev.State == nil {
					continue
				}
				to, ok := StateFor(ev.State.State)
				if !ok {
					continue
				}
				w, err := r.FindByPane(ev.PaneID)
				if err != nil || w == nil {
					continue
				}
				_, err = r.UpdateState(w.ID, to)
				if err != nil && w.State == StateSpawning && CanTransition(StateWorking, to) {
					// Any classification means the spawn finished; route
					// through working so the lifecycle stays legal.
					if _, err = r.UpdateState(w.ID, StateWorking); err == nil {
						_, err = r.UpdateState(w.ID, to)
					}
				}
				if err != nil {
					// Illegal moves (done is terminal, error needs an
					// explicit retry) are expected under polling jitter.
					slog.Default().Debug("state not mirrored",
						"worker", w.ID, "pane", ev.PaneID, "error", err)
				}
			case monitor.EventPollError:
				r.HandlePaneGone(ev.PaneID)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
