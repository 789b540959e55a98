package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/getgenie/genie/internal/util"
)

const workersFile = "workers.json"

// ErrWorkerNotFound is returned for operations on unknown worker ids.
var ErrWorkerNotFound = errors.New("worker not found")

// Registry is CRUD plus the lifecycle state machine over persisted worker
// records. Every mutating call re-reads workers.json under a file lock, so
// sibling processes sharing the state directory stay consistent.
type Registry struct {
	dir  string
	path string
}

// NewRegistry opens (creating if needed) a registry rooted at the state dir.
func NewRegistry(stateDir string) (*Registry, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Registry{dir: stateDir, path: filepath.Join(stateDir, workersFile)}, nil
}

// withLock runs fn while holding the registry file lock.
func (r *Registry) withLock(fn func() error) error {
	lock := flock.New(r.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock registry: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

// load reads all workers. A missing file is an empty registry.
func (r *Registry) load() (map[string]*Worker, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Worker{}, nil
		}
		return nil, fmt.Errorf("read workers file: %w", err)
	}
	var workers map[string]*Worker
	if err := json.Unmarshal(data, &workers); err != nil {
		return nil, fmt.Errorf("parse workers file: %w", err)
	}
	if workers == nil {
		workers = map[string]*Worker{}
	}
	return workers, nil
}

func (r *Registry) save(workers map[string]*Worker) error {
	data, err := json.MarshalIndent(workers, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize workers: %w", err)
	}
	if err := util.AtomicWriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write workers file: %w", err)
	}
	return nil
}

// Register adds a new worker record. The id must be unused; use
// GenerateWorkerID to pick one.
func (r *Registry) Register(w *Worker) error {
	if w.ID == "" {
		return errors.New("worker id required")
	}
	if w.State == "" {
		w.State = StateSpawning
	}
	now := time.Now().UTC()
	if w.StartedAt.IsZero() {
		w.StartedAt = now
	}
	if w.LastStateAt.IsZero() {
		w.LastStateAt = now
	}
	return r.withLock(func() error {
		workers, err := r.load()
		if err != nil {
			return err
		}
		if _, exists := workers[w.ID]; exists {
			return fmt.Errorf("worker %s already registered", w.ID)
		}
		workers[w.ID] = w
		return r.save(workers)
	})
}

// Unregister removes a worker record. Unknown ids are a no-op: unregistration
// races against pane-gone garbage collection and must stay idempotent.
func (r *Registry) Unregister(id string) error {
	return r.withLock(func() error {
		workers, err := r.load()
		if err != nil {
			return err
		}
		if _, ok := workers[id]; !ok {
			return nil
		}
		delete(workers, id)
		return r.save(workers)
	})
}

// Update applies fn to the stored record under the lock and persists it.
func (r *Registry) Update(id string, fn func(*Worker)) (*Worker, error) {
	var updated *Worker
	err := r.withLock(func() error {
		workers, err := r.load()
		if err != nil {
			return err
		}
		w, ok := workers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
		}
		fn(w)
		updated = w
		return r.save(workers)
	})
	return updated, err
}

// UpdateState moves a worker through the lifecycle state machine. Illegal
// transitions are rejected.
func (r *Registry) UpdateState(id string, to State) (*Worker, error) {
	var updated *Worker
	err := r.withLock(func() error {
		workers, err := r.load()
		if err != nil {
			return err
		}
		w, ok := workers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
		}
		if w.State == to {
			updated = w
			return nil
		}
		if !CanTransition(w.State, to) {
			return fmt.Errorf("worker %s: illegal transition %s → %s", id, w.State, to)
		}
		w.State = to
		w.LastStateAt = time.Now().UTC()
		updated = w
		return r.save(workers)
	})
	return updated, err
}

// Retry moves an errored worker back to working. This is the only way out of
// the error state.
func (r *Registry) Retry(id string) (*Worker, error) {
	var updated *Worker
	err := r.withLock(func() error {
		workers, err := r.load()
		if err != nil {
			return err
		}
		w, ok := workers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
		}
		if w.State != StateError {
			return fmt.Errorf("worker %s is %s, only errored workers can be retried", id, w.State)
		}
		w.State = StateWorking
		w.LastStateAt = time.Now().UTC()
		updated = w
		return r.save(workers)
	})
	return updated, err
}

// Get returns a worker by id, or nil if absent.
func (r *Registry) Get(id string) (*Worker, error) {
	workers, err := r.load()
	if err != nil {
		return nil, err
	}
	return workers[id], nil
}

// List returns all workers sorted by id.
func (r *Registry) List() ([]*Worker, error) {
	workers, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*Worker, 0, len(workers))
	for _, w := range workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByPane returns the worker owning the pane (primary or sub-pane), or nil.
func (r *Registry) FindByPane(paneID string) (*Worker, error) {
	workers, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, w := range workers {
		if w.PaneID == paneID {
			return w, nil
		}
		for _, sub := range w.SubPaneIDs {
			if sub == paneID {
				return w, nil
			}
		}
	}
	return nil, nil
}

// FindByTask returns the first worker assigned to the task (by id order), or
// nil. Use FindAllByTask when a task may have several workers.
func (r *Registry) FindByTask(taskID string) (*Worker, error) {
	all, err := r.FindAllByTask(taskID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// FindAllByTask returns every worker assigned to the task, sorted by id.
func (r *Registry) FindAllByTask(taskID string) ([]*Worker, error) {
	workers, err := r.load()
	if err != nil {
		return nil, err
	}
	var out []*Worker
	for _, w := range workers {
		if w.TaskID == taskID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountByTask returns how many workers a task currently has.
func (r *Registry) CountByTask(taskID string) (int, error) {
	all, err := r.FindAllByTask(taskID)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// GenerateWorkerID derives a unique worker id from the task id plus an
// optional custom name. When the base id is taken, a numeric suffix
// disambiguates: gt-42, gt-42-2, gt-42-3, ...
func (r *Registry) GenerateWorkerID(taskID, customName string) (string, error) {
	base := taskID
	if customName != "" {
		base = taskID + "-" + customName
	}
	workers, err := r.load()
	if err != nil {
		return "", err
	}
	if _, taken := workers[base]; !taken {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if _, taken := workers[candidate]; !taken {
			return candidate, nil
		}
	}
}

// ElapsedTime formats how long the worker has been running.
func (r *Registry) ElapsedTime(id string) (string, error) {
	w, err := r.Get(id)
	if err != nil {
		return "", err
	}
	if w == nil {
		return "", fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}
	return FormatElapsed(w.StartedAt, time.Now()), nil
}

// HandlePaneGone unregisters the worker owning a dead pane. This is the
// primary liveness mechanism: the monitor's poll_error event routes here, and
// there is no separate heartbeat.
func (r *Registry) HandlePaneGone(paneID string) {
	w, err := r.FindByPane(paneID)
	if err != nil || w == nil {
		return
	}
	if err := r.Unregister(w.ID); err != nil {
		slog.Default().Warn("failed to unregister worker for dead pane",
			"worker", w.ID, "pane", paneID, "error", err)
		return
	}
	slog.Default().Info("unregistered worker, pane gone", "worker", w.ID, "pane", paneID)
}
