package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/getgenie/genie/internal/util"
)

const batchesDir = "batches"

// ErrVersionConflict is returned when a save loses the optimistic-concurrency
// race: another writer persisted a newer version since this batch was read.
var ErrVersionConflict = errors.New("batch modified concurrently")

// Store persists one JSON file per batch under <stateDir>/batches/.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the batch store.
func NewStore(stateDir string) (*Store, error) {
	dir := filepath.Join(stateDir, batchesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create batches dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, util.SanitizeFilename(id)+".json")
}

// Create persists a new batch with queued slots for every item.
func (s *Store) Create(id string, items []Item, opts Options) (*Batch, error) {
	b := &Batch{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Status:    StatusActive,
		Items:     items,
		Workers:   make(map[string]*BatchWorker, len(items)),
		Options:   opts,
	}
	for _, item := range items {
		b.Workers[item.ID] = &BatchWorker{Status: WorkerQueued}
	}
	if err := s.Save(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Load reads a batch by id. Unknown ids return (nil, nil) so callers can keep
// processing other batches.
func (s *Store) Load(id string) (*Batch, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read batch %s: %w", id, err)
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", id, err)
	}
	if b.Workers == nil {
		b.Workers = map[string]*BatchWorker{}
	}
	return &b, nil
}

// Save persists a batch under the file lock, enforcing the version counter:
// the on-disk version must match the version the caller read, otherwise
// ErrVersionConflict. The stored version is bumped on success.
func (s *Store) Save(b *Batch) error {
	lock := flock.New(s.path(b.ID) + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock batch %s: %w", b.ID, err)
	}
	defer lock.Unlock()

	current, err := s.Load(b.ID)
	if err != nil {
		return err
	}
	if current != nil && current.Version != b.Version {
		return fmt.Errorf("%w: %s (disk v%d, ours v%d)", ErrVersionConflict, b.ID, current.Version, b.Version)
	}

	b.Version++
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		b.Version--
		return fmt.Errorf("serialize batch %s: %w", b.ID, err)
	}
	if err := util.AtomicWriteFile(s.path(b.ID), data, 0o644); err != nil {
		b.Version--
		return fmt.Errorf("write batch %s: %w", b.ID, err)
	}
	return nil
}

// List returns all persisted batch ids.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
