// Package tasks tracks background indexing runs in memory. Task records are
// deliberately non-durable: the events table carries the persistent status.
package tasks

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound = errors.New("task not found")
	// ErrFinished is returned for any transition out of a terminal state.
	ErrFinished = errors.New("task already finished")
)

// ItemFailure records one photo that failed during a run without aborting it.
type ItemFailure struct {
	PhotoID   string `json:"photo_id"`
	PhotoName string `json:"photo_name"`
	Reason    string `json:"reason"`
}

// Task is a snapshot of one indexing run.
type Task struct {
	ID           uuid.UUID     `json:"id"`
	EventID      uuid.UUID     `json:"event_id"`
	Status       Status        `json:"status"`
	Progress     int           `json:"progress"`
	Total        int           `json:"total"`
	CurrentItem  string        `json:"current_item,omitempty"`
	FacesFound   int           `json:"faces_found"`
	ItemFailures []ItemFailure `json:"item_failures,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

func (t *Task) terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Tracker is a registry of task records. Writers are the owning workers (one
// per task); readers are polling HTTP handlers. The lock guards the registry
// and records only, never the long-running work itself.
type Tracker struct {
	mu     sync.RWMutex
	tasks  map[uuid.UUID]*Task
	latest map[uuid.UUID]uuid.UUID // event id -> newest task id
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks:  make(map[uuid.UUID]*Task),
		latest: make(map[uuid.UUID]uuid.UUID),
	}
}

// Create registers a new pending task for an event and returns its id.
func (tr *Tracker) Create(eventID uuid.UUID, total int) uuid.UUID {
	id := uuid.New()
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.tasks[id] = &Task{
		ID:        id,
		EventID:   eventID,
		Status:    StatusPending,
		Total:     total,
		CreatedAt: time.Now(),
	}
	tr.latest[eventID] = id
	return id
}

// CreateIfIdle registers a new pending task for an event unless the event's
// newest task is still pending or running. The check and the create happen
// under one lock so two concurrent callers cannot both start a run; the loser
// gets the active task's id and created=false.
func (tr *Tracker) CreateIfIdle(eventID uuid.UUID, total int) (id uuid.UUID, created bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if latestID, ok := tr.latest[eventID]; ok {
		if t, ok := tr.tasks[latestID]; ok && !t.terminal() {
			return latestID, false
		}
	}

	id = uuid.New()
	tr.tasks[id] = &Task{
		ID:        id,
		EventID:   eventID,
		Status:    StatusPending,
		Total:     total,
		CreatedAt: time.Now(),
	}
	tr.latest[eventID] = id
	return id, true
}

// Start moves a pending task to running.
func (tr *Tracker) Start(id uuid.UUID) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.terminal() {
		return ErrFinished
	}
	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
	return nil
}

// Update advances progress on a running task.
func (tr *Tracker) Update(id uuid.UUID, progress, total int, currentItem string, facesFound int) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.terminal() {
		return ErrFinished
	}
	t.Progress = progress
	t.Total = total
	t.CurrentItem = currentItem
	t.FacesFound = facesFound
	return nil
}

// RecordItemFailure notes a non-fatal per-photo failure.
func (tr *Tracker) RecordItemFailure(id uuid.UUID, photoID, photoName, reason string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.terminal() {
		return ErrFinished
	}
	t.ItemFailures = append(t.ItemFailures, ItemFailure{
		PhotoID:   photoID,
		PhotoName: photoName,
		Reason:    reason,
	})
	return nil
}

// Complete marks the task finished successfully.
func (tr *Tracker) Complete(id uuid.UUID) error {
	return tr.finish(id, StatusCompleted, "")
}

// Fail marks the task finished with an error message.
func (tr *Tracker) Fail(id uuid.UUID, errMsg string) error {
	return tr.finish(id, StatusFailed, errMsg)
}

func (tr *Tracker) finish(id uuid.UUID, status Status, errMsg string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.terminal() {
		return ErrFinished
	}
	now := time.Now()
	t.Status = status
	t.Error = errMsg
	t.CurrentItem = ""
	t.CompletedAt = &now
	return nil
}

// Get returns a snapshot of the task.
func (tr *Tracker) Get(id uuid.UUID) (Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	t, ok := tr.tasks[id]
	if !ok {
		return Task{}, false
	}
	return snapshot(t), true
}

// LatestForEvent returns a snapshot of the newest task for the event.
func (tr *Tracker) LatestForEvent(eventID uuid.UUID) (Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	id, ok := tr.latest[eventID]
	if !ok {
		return Task{}, false
	}
	t, ok := tr.tasks[id]
	if !ok {
		return Task{}, false
	}
	return snapshot(t), true
}

func snapshot(t *Task) Task {
	cp := *t
	if len(t.ItemFailures) > 0 {
		cp.ItemFailures = append([]ItemFailure(nil), t.ItemFailures...)
	}
	return cp
}
