// Package events persists monitor event streams as per-pane JSONL files,
// so external tools can aggregate activity across panes after the fact.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/getgenie/genie/internal/monitor"
	"github.com/getgenie/genie/internal/util"
)

const eventsDir = "events"

// Sink appends monitor events to events/<paneId>.jsonl under the state
// directory. Files are opened lazily and kept open for the sink's lifetime.
type Sink struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewSink creates a sink rooted at the state dir.
func NewSink(stateDir string) (*Sink, error) {
	dir := filepath.Join(stateDir, eventsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	return &Sink{dir: dir, files: make(map[string]*os.File)}, nil
}

// PaneFile returns the stream file path for a pane id.
func (s *Sink) PaneFile(paneID string) string {
	return filepath.Join(s.dir, util.SanitizeFilename(paneID)+".jsonl")
}

// Append writes one event as a JSON line to its pane's stream.
func (s *Sink) Append(ev monitor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[ev.PaneID]
	if !ok {
		f, err = os.OpenFile(s.PaneFile(ev.PaneID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open event stream: %w", err)
		}
		s.files[ev.PaneID] = f
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Record subscribes to a monitor and appends every event until the monitor
// stops or cancel is called. Append failures are logged, not fatal.
func (s *Sink) Record(m *monitor.Monitor) (cancel func()) {
	events, unsub := m.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if err := s.Append(ev); err != nil {
				slog.Default().Warn("event sink append failed", "pane", ev.PaneID, "error", err)
			}
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

// Close closes all open stream files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for pane, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, pane)
	}
	return firstErr
}

// Read returns all events recorded for a pane. A missing stream is empty;
// malformed lines are skipped.
func Read(stateDir, paneID string) ([]monitor.Event, error) {
	path := filepath.Join(stateDir, eventsDir, util.SanitizeFilename(paneID)+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	defer f.Close()

	var out []monitor.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev monitor.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read event stream: %w", err)
	}
	return out, nil
}

// Tail returns the last n events recorded for a pane.
func Tail(stateDir, paneID string, n int) ([]monitor.Event, error) {
	all, err := Read(stateDir, paneID)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
