package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getgenie/genie/internal/detect"
	"github.com/getgenie/genie/internal/monitor"
)

// scriptedPane serves scripted snapshots, repeating the last one. With
// errAt >= 0 every capture from that call on fails.
type scriptedPane struct {
	mu     sync.Mutex
	frames []string
	errAt  int
	calls  int
}

func (p *scriptedPane) CapturePaneContent(paneID string, lines int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.errAt >= 0 && p.calls >= p.errAt {
		return "", errors.New("can't find pane: " + paneID)
	}
	i := p.calls
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.calls++
	return p.frames[i], nil
}

func trackConfig() monitor.Config {
	return monitor.Config{PollInterval: 5 * time.Millisecond, CaptureLines: 50, Window: 40}
}

func waitForState(t *testing.T, r *Registry, id string, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if w != nil && w.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	w, _ := r.Get(id)
	t.Fatalf("worker %s never reached %s (now %+v)", id, want, w)
}

func TestStateFor(t *testing.T) {
	tests := []struct {
		in   detect.State
		want State
		ok   bool
	}{
		{detect.StateWorking, StateWorking, true},
		{detect.StateToolUse, StateWorking, true},
		{detect.StateIdle, StateIdle, true},
		{detect.StatePermission, StatePermission, true},
		{detect.StateQuestion, StateQuestion, true},
		{detect.StateError, StateError, true},
		{detect.StateComplete, StateDone, true},
		{detect.StateUnknown, "", false},
	}
	for _, tt := range tests {
		got, ok := StateFor(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("StateFor(%s) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTrack_MirrorsStateChanges(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Worker{ID: "gt-7", PaneID: "%3", SessionName: "genie", TaskID: "gt-7"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pane := &scriptedPane{
		frames: []string{
			"✻ Thinking…\n(esc to interrupt)\n",
			"⏺ Bash(go vet ./...)\n\nDo you want to proceed?\n❯ 1. Yes\n  2. No\n",
		},
		errAt: -1,
	}
	m := monitor.New(pane, "%3", trackConfig())
	stop := r.Track(m)
	defer stop()
	m.Start()
	defer m.Stop()

	waitForState(t, r, "gt-7", StatePermission)
}

func TestTrack_SpawningRoutesThroughWorking(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Worker{ID: "gt-8", PaneID: "%4", SessionName: "genie", TaskID: "gt-8"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The first classification the pane ever shows is idle, which the
	// lifecycle only reaches via working.
	pane := &scriptedPane{frames: []string{"│ > │\n? for shortcuts\n"}, errAt: -1}
	m := monitor.New(pane, "%4", trackConfig())
	stop := r.Track(m)
	defer stop()
	m.Start()
	defer m.Stop()

	waitForState(t, r, "gt-8", StateIdle)
}

func TestTrack_PollErrorUnregisters(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(&Worker{ID: "gt-9", PaneID: "%5", SessionName: "genie", TaskID: "gt-9"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pane := &scriptedPane{frames: []string{"✻ Thinking…\n(esc to interrupt)\n"}, errAt: 2}
	m := monitor.New(pane, "%5", trackConfig())
	stop := r.Track(m)
	defer stop()
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w, err := r.Get("gt-9")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if w == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker gt-9 still registered after its pane died")
}

func TestTrack_IgnoresUnregisteredPanes(t *testing.T) {
	r := newTestRegistry(t)

	pane := &scriptedPane{frames: []string{"✻ Thinking…\n(esc to interrupt)\n"}, errAt: -1}
	m := monitor.New(pane, "%6", trackConfig())
	stop := r.Track(m)
	m.Start()

	time.Sleep(30 * time.Millisecond)
	m.Stop()
	stop()

	workers, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(workers) != 0 {
		t.Fatalf("registry grew %d workers from an untracked pane", len(workers))
	}
}
