package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getgenie/genie/internal/detect"
)

// fakeDriver serves scripted snapshots. Once the script is exhausted the last
// snapshot repeats; an entry with err set fails the capture.
type fakeDriver struct {
	mu     sync.Mutex
	script []fakeCapture
	pos    int
}

type fakeCapture struct {
	text string
	err  error
}

func (f *fakeDriver) CapturePaneContent(paneID string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return "", nil
	}
	cur := f.script[f.pos]
	if f.pos < len(f.script)-1 {
		f.pos++
	}
	return cur.text, cur.err
}

func testConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, CaptureLines: 50, Window: 40}
}

func collectUntil(t *testing.T, ch <-chan Event, want EventType, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed before %s (got %d events)", want, len(got))
			}
			got = append(got, ev)
			if ev.Type == want {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %d events", want, len(got))
		}
	}
}

func TestMonitor_StateChangeAndPermissionEvents(t *testing.T) {
	working := "✻ Thinking…\n(esc to interrupt)\n"
	permission := "⏺ Bash(go vet ./...)\n\nDo you want to proceed?\n❯ 1. Yes\n  2. No, and tell Claude what to do differently\n"
	driver := &fakeDriver{script: []fakeCapture{{text: working}, {text: permission}}}

	m := New(driver, "%1", testConfig())
	events, cancel := m.Subscribe()
	defer cancel()
	m.Start()
	defer m.Stop()

	got := collectUntil(t, events, EventPermission, 2*time.Second)

	var sawWorkingChange, sawPermissionChange bool
	for _, ev := range got {
		if ev.Type == EventStateChange && ev.State != nil {
			switch ev.State.State {
			case detect.StateWorking:
				sawWorkingChange = true
			case detect.StatePermission:
				sawPermissionChange = true
			}
		}
	}
	if !sawWorkingChange {
		t.Error("missing state_change to working")
	}
	if !sawPermissionChange {
		t.Error("missing state_change to permission")
	}

	last := got[len(got)-1]
	if last.State == nil || last.State.Permission == nil {
		t.Fatal("permission event missing extracted details")
	}
	if last.State.Permission.Command != "go vet ./..." {
		t.Errorf("command = %q", last.State.Permission.Command)
	}
}

func TestMonitor_ActivityWithoutStateChange(t *testing.T) {
	a := "✻ Thinking…\n(esc to interrupt)\n"
	b := a + "more output\n(esc to interrupt)\n"
	driver := &fakeDriver{script: []fakeCapture{{text: a}, {text: b}}}

	m := New(driver, "%1", testConfig())
	events, cancel := m.Subscribe()
	defer cancel()
	m.Start()
	defer m.Stop()

	got := collectUntil(t, events, EventActivity, 2*time.Second)
	last := got[len(got)-1]
	if last.State == nil || last.State.State != detect.StateWorking {
		t.Errorf("activity event state = %+v, want working", last.State)
	}
}

func TestMonitor_SilenceAccumulates(t *testing.T) {
	driver := &fakeDriver{script: []fakeCapture{{text: "> "}}}

	m := New(driver, "%1", testConfig())
	events, cancel := m.Subscribe()
	defer cancel()
	m.Start()
	defer m.Stop()

	var first, second time.Duration
	deadline := time.After(2 * time.Second)
	for second == 0 {
		select {
		case ev := <-events:
			if ev.Type != EventSilence {
				continue
			}
			if first == 0 {
				first = ev.Silence
			} else if ev.Silence > first {
				second = ev.Silence
			}
		case <-deadline:
			t.Fatal("timed out waiting for growing silence")
		}
	}
}

func TestMonitor_PollErrorStopsMonitor(t *testing.T) {
	driver := &fakeDriver{script: []fakeCapture{
		{text: "> "},
		{err: errors.New("can't find pane: %1")},
	}}

	m := New(driver, "%1", testConfig())
	events, cancel := m.Subscribe()
	defer cancel()
	m.Start()

	got := collectUntil(t, events, EventPollError, 2*time.Second)
	last := got[len(got)-1]
	if last.Err == "" {
		t.Error("poll_error event missing error text")
	}

	// The loop stops itself; a subsequent Stop must not hang or panic.
	m.Stop()
}

func TestMonitor_EmitRacesSubscriberCancel(t *testing.T) {
	m := New(&fakeDriver{}, "%1", testConfig())

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					m.emit(Event{Type: EventActivity, PaneID: "%1"})
				}
			}
		}()
	}

	// Churn subscriptions while events are being fanned out. A cancel
	// landing mid-emit must never make emit send on a closed channel.
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case <-deadline:
			close(done)
			wg.Wait()
			return
		default:
			ch, cancel := m.Subscribe()
			select {
			case <-ch:
			default:
			}
			cancel()
		}
	}
}

func TestMonitor_StopIdempotent(t *testing.T) {
	driver := &fakeDriver{script: []fakeCapture{{text: "> "}}}
	m := New(driver, "%1", testConfig())

	// Stop before start.
	m.Stop()

	m.Start()
	m.Start() // second start is a no-op
	m.Stop()
	m.Stop()
}

func TestResolveMethod(t *testing.T) {
	tests := []struct {
		name      string
		wantErr   bool
		threshold time.Duration
	}{
		{name: "", threshold: DefaultSilenceThreshold},
		{name: "silence", threshold: DefaultSilenceThreshold},
		{name: "silence-500ms", threshold: 500 * time.Millisecond},
		{name: "silence-45s", threshold: 45 * time.Second},
		{name: "idle"},
		{name: "silence-0ms", wantErr: true},
		{name: "silence-xs", wantErr: true},
		{name: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := ResolveMethod(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMethod(%q): %v", tt.name, err)
			}
			if s, ok := method.(*SilenceMethod); ok && tt.threshold != 0 && s.Threshold != tt.threshold {
				t.Errorf("threshold = %v, want %v", s.Threshold, tt.threshold)
			}
		})
	}
}

func TestSilenceMethod_Detect(t *testing.T) {
	driver := &fakeDriver{script: []fakeCapture{{text: "> "}}}
	m := New(driver, "%1", testConfig())
	m.Start()
	defer m.Stop()

	method := &SilenceMethod{Threshold: 30 * time.Millisecond}
	res, err := method.Detect(context.Background(), m, 2*time.Second)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Complete {
		t.Fatalf("expected completion, got %+v", res)
	}
	if res.Latency <= 0 {
		t.Error("latency not measured")
	}
}

func TestSilenceMethod_Timeout(t *testing.T) {
	// Every capture returns different text, so silence never accumulates.
	driver := &changingDriver{}
	m := New(driver, "%1", testConfig())
	m.Start()
	defer m.Stop()

	method := &SilenceMethod{Threshold: 10 * time.Second}
	res, err := method.Detect(context.Background(), m, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Complete {
		t.Error("expected timeout, got completion")
	}
	if res.Reason != "timeout" {
		t.Errorf("reason = %q", res.Reason)
	}
}

type changingDriver struct {
	mu sync.Mutex
	n  int
}

func (c *changingDriver) CapturePaneContent(paneID string, lines int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return "output line " + time.Now().String() + "\n(esc to interrupt)\n", nil
}

func TestIdleMethod_Detect(t *testing.T) {
	working := "✻ Thinking…\n(esc to interrupt)\n"
	idle := "⏺ Updated the tests.\n\n│ > │\n"
	driver := &fakeDriver{script: []fakeCapture{{text: working}, {text: working}, {text: idle}}}

	m := New(driver, "%1", testConfig())
	m.Start()
	defer m.Stop()

	method := &IdleMethod{}
	res, err := method.Detect(context.Background(), m, 2*time.Second)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !res.Complete {
		t.Fatalf("expected completion, got %+v", res)
	}
	if res.State != detect.StateIdle {
		t.Errorf("state = %v, want idle", res.State)
	}
}
