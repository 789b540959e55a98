package batch

import (
	"log/slog"
	"time"
)

// SpawnFunc starts the worker for one item and returns its pane id.
type SpawnFunc func(item Item) (paneID string, err error)

// WishesToSpawn returns the queued items eligible to start now, in original
// item order. With no MaxConcurrent every queued item is eligible; otherwise
// at most max(0, MaxConcurrent - active) items are returned, where active
// counts both spawning and running slots.
func WishesToSpawn(b *Batch) []Item {
	var queued []Item
	for _, item := range b.Items {
		if b.worker(item.ID).Status == WorkerQueued {
			queued = append(queued, item)
		}
	}
	if b.Options.MaxConcurrent <= 0 {
		return queued
	}
	slots := b.Options.MaxConcurrent - b.ActiveCount()
	if slots <= 0 {
		return nil
	}
	if len(queued) > slots {
		queued = queued[:slots]
	}
	return queued
}

// Result summarizes one ProcessQueue run.
type Result struct {
	Spawned int `json:"spawned"`
	Failed  int `json:"failed"`
}

// ProcessQueue spawns eligible queued items of the batch. The batch is
// re-read from the store immediately before and after each spawn: an
// in-memory copy is never trusted across the spawn call, since a sibling
// process may be mutating the same file. A single item's failure marks that
// item failed and never aborts the remaining items. Unknown batch ids return
// a zero Result.
func ProcessQueue(store *Store, batchID string, spawn SpawnFunc) (Result, error) {
	var res Result

	b, err := store.Load(batchID)
	if err != nil {
		return res, err
	}
	if b == nil {
		return res, nil
	}

	eligible := WishesToSpawn(b)
	for _, item := range eligible {
		// Re-read before mutating: a sibling may have claimed this item.
		b, err = store.Load(batchID)
		if err != nil {
			return res, err
		}
		if b == nil || b.Status != StatusActive {
			return res, nil
		}
		slot := b.worker(item.ID)
		if slot.Status != WorkerQueued {
			continue
		}
		if b.Options.MaxConcurrent > 0 && b.ActiveCount() >= b.Options.MaxConcurrent {
			break
		}

		now := time.Now().UTC()
		b.Workers[item.ID] = &BatchWorker{Status: WorkerSpawning, StartedAt: &now}
		if err := store.Save(b); err != nil {
			return res, err
		}

		paneID, spawnErr := spawn(item)

		// Re-read after the spawn as well; the file may have moved on.
		b, err = store.Load(batchID)
		if err != nil {
			return res, err
		}
		if b == nil {
			return res, nil
		}
		slot = b.worker(item.ID)
		if spawnErr != nil {
			done := time.Now().UTC()
			slot.Status = WorkerFailed
			slot.CompletedAt = &done
			b.Workers[item.ID] = slot
			res.Failed++
			slog.Default().Warn("batch item spawn failed",
				"batch", batchID, "item", item.ID, "error", spawnErr)
		} else {
			slot.Status = WorkerRunning
			slot.PaneID = paneID
			b.Workers[item.ID] = slot
			res.Spawned++
		}
		if err := store.Save(b); err != nil {
			return res, err
		}
	}
	return res, nil
}

// CancelBatch cancels every non-terminal worker slot and the batch itself,
// persists, and returns the updated batch. Terminal slots are left untouched.
// Unknown ids return (nil, nil).
func CancelBatch(store *Store, batchID string) (*Batch, error) {
	b, err := store.Load(batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	for id, w := range b.Workers {
		if TerminalWorker(w.Status) {
			continue
		}
		w.Status = WorkerCancelled
		w.CompletedAt = &now
		b.Workers[id] = w
	}
	b.Status = StatusCancelled
	if err := store.Save(b); err != nil {
		return nil, err
	}
	return b, nil
}
