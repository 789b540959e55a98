package batch

import (
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func items(ids ...string) []Item {
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id}
	}
	return out
}

func TestWishesToSpawn_NoLimit(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Create("b1", items("a", "b", "c"), Options{})
	if err != nil {
		t.Fatal(err)
	}

	wishes := WishesToSpawn(b)
	if len(wishes) != 3 {
		t.Fatalf("got %d wishes, want 3", len(wishes))
	}
}

func TestWishesToSpawn_MaxConcurrent(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Create("b1", items("a", "b", "c"), Options{MaxConcurrent: 2})
	if err != nil {
		t.Fatal(err)
	}

	wishes := WishesToSpawn(b)
	if len(wishes) != 2 {
		t.Fatalf("got %d wishes, want 2", len(wishes))
	}
	if wishes[0].ID != "a" || wishes[1].ID != "b" {
		t.Errorf("wishes out of order: %v", wishes)
	}
}

func TestWishesToSpawn_SpawningConsumesSlot(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Create("b1", items("a", "b", "c"), Options{MaxConcurrent: 2})
	if err != nil {
		t.Fatal(err)
	}
	b.Workers["a"].Status = WorkerSpawning
	b.Workers["b"].Status = WorkerRunning

	wishes := WishesToSpawn(b)
	if len(wishes) != 0 {
		t.Fatalf("got %d wishes, want 0 (both slots held)", len(wishes))
	}
}

func TestProcessQueue_RespectsConcurrency(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Create("b1", items("a", "b"), Options{MaxConcurrent: 2})
	if err != nil {
		t.Fatal(err)
	}
	b.Workers["a"].Status = WorkerRunning
	if err := s.Save(b); err != nil {
		t.Fatal(err)
	}

	var spawned []string
	res, err := ProcessQueue(s, "b1", func(item Item) (string, error) {
		spawned = append(spawned, item.ID)
		return "%9", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(spawned) != 1 || spawned[0] != "b" {
		t.Fatalf("spawned = %v", spawned)
	}

	got, err := s.Load("b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Workers["b"].Status != WorkerRunning {
		t.Errorf("item b status = %v, want running", got.Workers["b"].Status)
	}
	if got.Workers["b"].PaneID != "%9" {
		t.Errorf("item b pane = %q", got.Workers["b"].PaneID)
	}
}

func TestProcessQueue_FailureIsolated(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("b1", items("good", "bad"), Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := ProcessQueue(s, "b1", func(item Item) (string, error) {
		if item.ID == "bad" {
			return "", errors.New("tmux exploded")
		}
		return "%1", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}

	got, err := s.Load("b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Workers["good"].Status != WorkerRunning {
		t.Errorf("good = %v", got.Workers["good"].Status)
	}
	if got.Workers["bad"].Status != WorkerFailed {
		t.Errorf("bad = %v", got.Workers["bad"].Status)
	}
	if got.Workers["bad"].CompletedAt == nil {
		t.Error("failed item missing completion timestamp")
	}
}

func TestProcessQueue_UnknownBatch(t *testing.T) {
	s := newTestStore(t)
	res, err := ProcessQueue(s, "ghost", func(item Item) (string, error) {
		t.Fatal("spawn should not be called")
		return "", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Spawned != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
}

func TestCancelBatch(t *testing.T) {
	s := newTestStore(t)
	b, err := s.Create("b1", items("r", "c", "w"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	b.Workers["r"].Status = WorkerRunning
	b.Workers["c"].Status = WorkerComplete
	b.Workers["w"].Status = WorkerWaiting
	if err := s.Save(b); err != nil {
		t.Fatal(err)
	}

	cancelled, err := CancelBatch(s, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("batch status = %v", cancelled.Status)
	}
	if cancelled.Workers["r"].Status != WorkerCancelled {
		t.Errorf("running slot = %v, want cancelled", cancelled.Workers["r"].Status)
	}
	if cancelled.Workers["w"].Status != WorkerCancelled {
		t.Errorf("waiting slot = %v, want cancelled", cancelled.Workers["w"].Status)
	}
	if cancelled.Workers["c"].Status != WorkerComplete {
		t.Errorf("complete slot = %v, must stay complete", cancelled.Workers["c"].Status)
	}

	// The persisted file reflects the same.
	reread, err := s.Load("b1")
	if err != nil {
		t.Fatal(err)
	}
	if reread.Status != StatusCancelled || reread.Workers["r"].Status != WorkerCancelled {
		t.Errorf("persisted batch not cancelled: %+v", reread)
	}
}

func TestCancelBatch_Unknown(t *testing.T) {
	s := newTestStore(t)
	got, err := CancelBatch(s, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown batch, got %+v", got)
	}
}

func TestSave_VersionConflict(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("b1", items("a"), Options{}); err != nil {
		t.Fatal(err)
	}

	first, err := s.Load("b1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Load("b1")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err = s.Save(second)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}
