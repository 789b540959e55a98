package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/getgenie/genie/internal/detect"
	"github.com/getgenie/genie/internal/util"
)

// Capturer is the slice of the tmux driver the monitor needs.
type Capturer interface {
	CapturePaneContent(paneID string, lines int) (string, error)
}

// Config tunes one pane monitor. The intervals are empirically chosen
// defaults, not contracts; override per deployment.
type Config struct {
	// PollInterval is how often the pane is captured. Default 500ms.
	PollInterval time.Duration
	// CaptureLines is how many trailing lines to capture. Default 100.
	CaptureLines int
	// Window is the trailing-line window handed to the classifier.
	Window int
}

// DefaultConfig returns the default monitor tuning.
func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		CaptureLines: 100,
		Window:       detect.DefaultWindow,
	}
}

// subscriber buffers delivered events; slow consumers drop rather than stall
// the poll loop.
type subscriber struct {
	ch chan Event
}

// Monitor watches one pane. Start and Stop are idempotent. When a capture
// fails (pane gone) the monitor emits poll_error and stops itself; callers
// use that to unregister the owning worker.
type Monitor struct {
	paneID string
	driver Capturer
	cfg    Config

	mu          sync.Mutex
	subs        []*subscriber
	running     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastText    string
	lastState   detect.State
	lastChange  time.Time
	dropped     int64
	notifyEvery int64
}

// New creates a monitor for one pane.
func New(driver Capturer, paneID string, cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.CaptureLines <= 0 {
		cfg.CaptureLines = DefaultConfig().CaptureLines
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Monitor{
		paneID:      paneID,
		driver:      driver,
		cfg:         cfg,
		lastState:   detect.StateUnknown,
		notifyEvery: 1000,
	}
}

// PaneID returns the pane this monitor watches.
func (m *Monitor) PaneID() string { return m.paneID }

// LastState returns the most recently classified state.
func (m *Monitor) LastState() detect.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState
}

// Subscribe registers an event channel. The returned cancel func removes the
// subscription and closes the channel.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 64)}
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Remove and close under the same lock emit sends under, so the
			// poll loop never sends on a closed channel.
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s == sub {
					m.subs = append(m.subs[:i], m.subs[i+1:]...)
					break
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Start begins the poll loop. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.lastChange = time.Now()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go m.loop(stopCh, doneCh)
}

// Stop halts the poll loop and waits for it to exit. Safe to call multiple
// times or on a never-started monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh
}

// stopFromLoop marks the monitor stopped when the loop exits on its own
// (capture failure). Stop called afterwards stays a no-op.
func (m *Monitor) stopFromLoop() {
	m.mu.Lock()
	if m.running {
		m.running = false
		close(m.stopCh)
	}
	m.mu.Unlock()
}

func (m *Monitor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !m.poll() {
				m.stopFromLoop()
				return
			}
		}
	}
}

// poll captures once and emits events. Returns false when the pane is gone
// and the loop should stop.
func (m *Monitor) poll() bool {
	text, err := m.driver.CapturePaneContent(m.paneID, m.cfg.CaptureLines)
	now := time.Now()
	if err != nil {
		slog.Default().Debug("pane capture failed", "pane", m.paneID, "error", err)
		m.emit(Event{Type: EventPollError, PaneID: m.paneID, Timestamp: now, Err: err.Error()})
		return false
	}

	res := detect.ClassifyWindow(text, m.cfg.Window)

	m.mu.Lock()
	prevText := m.lastText
	prevState := m.lastState
	lastChange := m.lastChange
	m.lastText = text
	changed := text != prevText
	if changed {
		m.lastChange = now
	}
	m.lastState = res.State
	m.mu.Unlock()

	if changed {
		delta := util.ExtractNewOutput(prevText, text)
		m.emit(Event{Type: EventOutput, PaneID: m.paneID, Timestamp: now, NewOutput: delta, State: &res})
		if res.State == prevState {
			m.emit(Event{Type: EventActivity, PaneID: m.paneID, Timestamp: now, NewOutput: delta, State: &res})
		}
	} else {
		m.emit(Event{Type: EventSilence, PaneID: m.paneID, Timestamp: now, Silence: now.Sub(lastChange), State: &res})
	}

	if res.State != prevState {
		m.emit(Event{Type: EventStateChange, PaneID: m.paneID, Timestamp: now, State: &res})
		if t, ok := stateEventType(res.State); ok {
			m.emit(Event{Type: t, PaneID: m.paneID, Timestamp: now, State: &res})
		}
	}
	return true
}

// stateEventType maps a classified state to its type-specific event.
func stateEventType(s detect.State) (EventType, bool) {
	switch s {
	case detect.StatePermission:
		return EventPermission, true
	case detect.StateQuestion:
		return EventQuestion, true
	case detect.StateError:
		return EventError, true
	case detect.StateComplete:
		return EventComplete, true
	default:
		return "", false
	}
}

// emit fans an event out to all subscribers without blocking the poll loop.
// Sends happen under m.mu and are non-blocking, so a concurrent cancel can
// never close a channel out from under a send.
func (m *Monitor) emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		select {
		case sub.ch <- ev:
		default:
			m.dropped++
			if m.dropped == 1 || m.dropped%m.notifyEvery == 0 {
				slog.Default().Debug("monitor dropped events (subscriber slow)",
					"pane", m.paneID, "dropped", m.dropped)
			}
		}
	}
}
