package tasks

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	eventID := uuid.New()

	id := tr.Create(eventID, 10)

	task, ok := tr.Get(id)
	if !ok {
		t.Fatal("task not found after Create")
	}
	if task.Status != StatusPending {
		t.Fatalf("status = %q, want %q", task.Status, StatusPending)
	}
	if task.Total != 10 {
		t.Fatalf("total = %d, want 10", task.Total)
	}

	if err := tr.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	task, _ = tr.Get(id)
	if task.Status != StatusRunning {
		t.Fatalf("status = %q, want %q", task.Status, StatusRunning)
	}
	if task.StartedAt == nil {
		t.Fatal("StartedAt not set")
	}

	if err := tr.Update(id, 4, 10, "IMG_0004.jpg", 7); err != nil {
		t.Fatalf("Update: %v", err)
	}
	task, _ = tr.Get(id)
	if task.Progress != 4 || task.FacesFound != 7 || task.CurrentItem != "IMG_0004.jpg" {
		t.Fatalf("unexpected progress snapshot: %+v", task)
	}

	if err := tr.Complete(id); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	task, _ = tr.Get(id)
	if task.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", task.Status, StatusCompleted)
	}
	if task.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if task.CurrentItem != "" {
		t.Fatalf("current item should clear on completion, got %q", task.CurrentItem)
	}
}

func TestTrackerTerminalStatesReject(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(uuid.New(), 1)
	if err := tr.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Fail(id, "listing failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if err := tr.Start(id); err != ErrFinished {
		t.Fatalf("Start after Fail = %v, want ErrFinished", err)
	}
	if err := tr.Update(id, 1, 1, "x", 0); err != ErrFinished {
		t.Fatalf("Update after Fail = %v, want ErrFinished", err)
	}
	if err := tr.Complete(id); err != ErrFinished {
		t.Fatalf("Complete after Fail = %v, want ErrFinished", err)
	}

	task, _ := tr.Get(id)
	if task.Status != StatusFailed || task.Error != "listing failed" {
		t.Fatalf("unexpected terminal task: %+v", task)
	}
}

func TestTrackerItemFailures(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(uuid.New(), 5)
	_ = tr.Start(id)

	if err := tr.RecordItemFailure(id, "p3", "corrupt.jpg", "decode image"); err != nil {
		t.Fatalf("RecordItemFailure: %v", err)
	}
	_ = tr.Complete(id)

	task, _ := tr.Get(id)
	if len(task.ItemFailures) != 1 {
		t.Fatalf("item failures = %d, want 1", len(task.ItemFailures))
	}
	f := task.ItemFailures[0]
	if f.PhotoID != "p3" || f.Reason != "decode image" {
		t.Fatalf("unexpected failure record: %+v", f)
	}

	// Snapshot must be isolated from later internal state.
	task.ItemFailures[0].Reason = "mutated"
	again, _ := tr.Get(id)
	if again.ItemFailures[0].Reason != "decode image" {
		t.Fatal("snapshot shares backing array with tracker state")
	}
}

func TestTrackerLatestForEvent(t *testing.T) {
	tr := NewTracker()
	eventID := uuid.New()

	if _, ok := tr.LatestForEvent(eventID); ok {
		t.Fatal("expected no task for fresh event")
	}

	first := tr.Create(eventID, 1)
	second := tr.Create(eventID, 2)

	task, ok := tr.LatestForEvent(eventID)
	if !ok {
		t.Fatal("expected latest task")
	}
	if task.ID != second {
		t.Fatalf("latest = %s, want %s (not %s)", task.ID, second, first)
	}
}

func TestTrackerCreateIfIdle(t *testing.T) {
	tr := NewTracker()
	eventID := uuid.New()

	first, created := tr.CreateIfIdle(eventID, 5)
	if !created {
		t.Fatal("fresh event should create a task")
	}

	// Pending and running tasks both block a second create.
	id, created := tr.CreateIfIdle(eventID, 5)
	if created || id != first {
		t.Fatalf("CreateIfIdle on pending task = (%s, %v), want (%s, false)", id, created, first)
	}
	_ = tr.Start(first)
	id, created = tr.CreateIfIdle(eventID, 5)
	if created || id != first {
		t.Fatalf("CreateIfIdle on running task = (%s, %v), want (%s, false)", id, created, first)
	}

	_ = tr.Complete(first)
	second, created := tr.CreateIfIdle(eventID, 5)
	if !created || second == first {
		t.Fatalf("finished task should not block a new one: (%s, %v)", second, created)
	}

	// A different event is independent.
	if _, created := tr.CreateIfIdle(uuid.New(), 1); !created {
		t.Fatal("other event should create its own task")
	}
}

func TestTrackerCreateIfIdleConcurrent(t *testing.T) {
	tr := NewTracker()
	eventID := uuid.New()

	const callers = 32
	ids := make([]uuid.UUID, callers)
	createdFlags := make([]bool, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], createdFlags[i] = tr.CreateIfIdle(eventID, 1)
		}(i)
	}
	wg.Wait()

	creates := 0
	for i := 0; i < callers; i++ {
		if createdFlags[i] {
			creates++
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got task %s, others got %s", i, ids[i], ids[0])
		}
	}
	if creates != 1 {
		t.Fatalf("creates = %d, want exactly 1", creates)
	}
}

func TestTrackerUnknownID(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Get(uuid.New()); ok {
		t.Fatal("Get on unknown id should miss")
	}
	if err := tr.Start(uuid.New()); err != ErrNotFound {
		t.Fatalf("Start unknown = %v, want ErrNotFound", err)
	}
}
