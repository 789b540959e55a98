package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/getgenie/genie/internal/util"
)

const tasksFile = "tasks.json"

// FileBackend stores tasks in a single JSON file under the state directory.
// Mutations re-read the file under a file lock, the same discipline as the
// worker registry.
type FileBackend struct {
	path string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend opens (creating if needed) a file-backed task store rooted
// at the state dir.
func NewFileBackend(stateDir string) (*FileBackend, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileBackend{path: filepath.Join(stateDir, tasksFile)}, nil
}

func (b *FileBackend) withLock(fn func() error) error {
	lock := flock.New(b.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock tasks: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

func (b *FileBackend) load() (map[string]*Task, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Task{}, nil
		}
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var tasks map[string]*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	if tasks == nil {
		tasks = map[string]*Task{}
	}
	return tasks, nil
}

func (b *FileBackend) save(tasks map[string]*Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize tasks: %w", err)
	}
	if err := util.AtomicWriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("write tasks file: %w", err)
	}
	return nil
}

// Get returns the task with the id, or nil if unknown.
func (b *FileBackend) Get(id string) (*Task, error) {
	var t *Task
	err := b.withLock(func() error {
		tasks, err := b.load()
		if err != nil {
			return err
		}
		t = tasks[id]
		return nil
	})
	return t, err
}

// Create adds a new task. Defaults: status open, timestamps now.
func (b *FileBackend) Create(t *Task) error {
	if t.ID == "" {
		return errors.New("task id required")
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return b.withLock(func() error {
		tasks, err := b.load()
		if err != nil {
			return err
		}
		if _, exists := tasks[t.ID]; exists {
			return fmt.Errorf("task %s already exists", t.ID)
		}
		tasks[t.ID] = t
		return b.save(tasks)
	})
}

// Update applies fn to the task under the lock and persists the result.
func (b *FileBackend) Update(id string, fn func(*Task)) (*Task, error) {
	var updated *Task
	err := b.withLock(func() error {
		tasks, err := b.load()
		if err != nil {
			return err
		}
		t, ok := tasks[id]
		if !ok {
			return fmt.Errorf("update task %s: %w", id, ErrTaskNotFound)
		}
		fn(t)
		t.UpdatedAt = time.Now().UTC()
		updated = t
		return b.save(tasks)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Claim marks the task claimed by assignee. Claiming an already-claimed task
// by someone else fails; re-claiming by the same assignee is a no-op.
func (b *FileBackend) Claim(id, assignee string) (*Task, error) {
	var claimed *Task
	err := b.withLock(func() error {
		tasks, err := b.load()
		if err != nil {
			return err
		}
		t, ok := tasks[id]
		if !ok {
			return fmt.Errorf("claim task %s: %w", id, ErrTaskNotFound)
		}
		if t.Status == StatusClaimed && t.Assignee != assignee {
			return fmt.Errorf("task %s already claimed by %s", id, t.Assignee)
		}
		if t.Status == StatusDone {
			return fmt.Errorf("task %s is already done", id)
		}
		t.Status = StatusClaimed
		t.Assignee = assignee
		t.UpdatedAt = time.Now().UTC()
		claimed = t
		return b.save(tasks)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkDone moves the task to done.
func (b *FileBackend) MarkDone(id string) (*Task, error) {
	return b.Update(id, func(t *Task) {
		t.Status = StatusDone
	})
}

// Queue returns open tasks split into ready (all dependencies done) and
// blocked, each sorted by creation time.
func (b *FileBackend) Queue() (*QueueView, error) {
	view := &QueueView{}
	err := b.withLock(func() error {
		tasks, err := b.load()
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.Status != StatusOpen {
				continue
			}
			if depsDone(t, tasks) {
				view.Ready = append(view.Ready, t)
			} else {
				view.Blocked = append(view.Blocked, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(view.Ready)
	sortByCreation(view.Blocked)
	return view, nil
}

// depsDone reports whether every dependency of t is done. A dependency on an
// unknown id blocks the task.
func depsDone(t *Task, tasks map[string]*Task) bool {
	for _, dep := range t.DependsOn {
		d, ok := tasks[dep]
		if !ok || d.Status != StatusDone {
			return false
		}
	}
	return true
}

func sortByCreation(ts []*Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID < ts[j].ID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}
