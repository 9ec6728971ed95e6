// Package autosync keeps indexed events current: a per-event loop polls the
// source folder's change feed and indexes photos that appeared after the
// initial run.
package autosync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/config"
	"github.com/your-org/snapmatch/internal/drive"
	"github.com/your-org/snapmatch/internal/models"
	"github.com/your-org/snapmatch/internal/observability"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListAutoSyncEvents(ctx context.Context) ([]models.Event, error)
	UpdateSyncSettings(ctx context.Context, id uuid.UUID, enabled bool, intervalMinutes int) error
	UpdateSyncCursor(ctx context.Context, id uuid.UUID, cursor string, syncedAt time.Time) error
	UpdateEventCounters(ctx context.Context, id uuid.UUID, indexedPhotos, totalFaces int) error
	IsSynced(ctx context.Context, eventID uuid.UUID, photoID string) (bool, error)
	MarkSynced(ctx context.Context, eventID uuid.UUID, photoID string) error
}

// PhotoIndexer processes a single new photo end to end.
type PhotoIndexer interface {
	IndexPhoto(ctx context.Context, event *models.Event, photo drive.PhotoRef) (int, error)
}

// Invalidator drops cached search state after new faces land.
type Invalidator interface {
	Invalidate(eventID uuid.UUID)
}

// ValidationError reports a rejected interval setting.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Status describes an event's sync configuration and last cycle.
type Status struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LoopRunning     bool       `json:"loop_running"`
}

// Scheduler owns the per-event sync loops.
type Scheduler struct {
	store   Store
	feed    drive.ChangeFeed
	indexer PhotoIndexer
	cache   Invalidator
	cfg     config.SyncConfig
	logger  *slog.Logger

	mu    sync.Mutex
	loops map[uuid.UUID]chan struct{}
	wg    sync.WaitGroup
}

func NewScheduler(store Store, feed drive.ChangeFeed, indexer PhotoIndexer, cache Invalidator, cfg config.SyncConfig) *Scheduler {
	return &Scheduler{
		store:   store,
		feed:    feed,
		indexer: indexer,
		cache:   cache,
		cfg:     cfg,
		logger:  slog.Default().With("component", "autosync"),
		loops:   make(map[uuid.UUID]chan struct{}),
	}
}

// Enable turns on auto-sync for an event, persists the setting, and starts
// its loop. Enabling an event whose loop is already running only updates the
// interval.
func (s *Scheduler) Enable(ctx context.Context, eventID uuid.UUID, intervalMinutes int) error {
	if intervalMinutes < s.cfg.MinIntervalMinutes || intervalMinutes > s.cfg.MaxIntervalMinutes {
		return &ValidationError{Msg: fmt.Sprintf(
			"sync interval %d out of range [%d, %d] minutes",
			intervalMinutes, s.cfg.MinIntervalMinutes, s.cfg.MaxIntervalMinutes)}
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	if event == nil {
		return fmt.Errorf("event %s not found", eventID)
	}

	if err := s.store.UpdateSyncSettings(ctx, eventID, true, intervalMinutes); err != nil {
		return fmt.Errorf("persist sync settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, running := s.loops[eventID]; running {
		// Restart with the new interval.
		close(stop)
	}
	stop := make(chan struct{})
	s.loops[eventID] = stop
	s.wg.Add(1)
	go s.loop(eventID, time.Duration(intervalMinutes)*time.Minute, stop)
	return nil
}

// Disable turns off auto-sync and stops the loop if one is running.
func (s *Scheduler) Disable(ctx context.Context, eventID uuid.UUID) error {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	if event == nil {
		return fmt.Errorf("event %s not found", eventID)
	}

	if err := s.store.UpdateSyncSettings(ctx, eventID, false, event.SyncIntervalMinutes); err != nil {
		return fmt.Errorf("persist sync settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, running := s.loops[eventID]; running {
		close(stop)
		delete(s.loops, eventID)
	}
	return nil
}

// Status reports an event's sync state.
func (s *Scheduler) Status(ctx context.Context, eventID uuid.UUID) (*Status, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if event == nil {
		return nil, fmt.Errorf("event %s not found", eventID)
	}

	s.mu.Lock()
	_, running := s.loops[eventID]
	s.mu.Unlock()

	return &Status{
		Enabled:         event.AutoSyncEnabled,
		IntervalMinutes: event.SyncIntervalMinutes,
		LastSyncAt:      event.LastSyncAt,
		LoopRunning:     running,
	}, nil
}

// ResumeAll restarts loops for every event flagged auto-sync in the store.
// Called once at startup.
func (s *Scheduler) ResumeAll(ctx context.Context) error {
	events, err := s.store.ListAutoSyncEvents(ctx)
	if err != nil {
		return fmt.Errorf("list auto-sync events: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, running := s.loops[ev.ID]; running {
			continue
		}
		interval := ev.SyncIntervalMinutes
		if interval < s.cfg.MinIntervalMinutes || interval > s.cfg.MaxIntervalMinutes {
			interval = s.cfg.DefaultIntervalMinutes
		}
		stop := make(chan struct{})
		s.loops[ev.ID] = stop
		s.wg.Add(1)
		go s.loop(ev.ID, time.Duration(interval)*time.Minute, stop)
	}
	s.logger.Info("auto-sync loops resumed", "count", len(events))
	return nil
}

// Shutdown stops every loop and waits for in-flight cycles to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for id, stop := range s.loops {
		close(stop)
		delete(s.loops, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(eventID uuid.UUID, interval time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()

	// First cycle runs immediately so a fresh enable is not a silent wait.
	s.runCycle(eventID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runCycle(eventID)
		}
	}
}

func (s *Scheduler) runCycle(eventID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger := s.logger.With("event_id", eventID)
	if err := s.cycle(ctx, logger, eventID); err != nil {
		logger.Warn("sync cycle failed", "error", err)
		observability.SyncCycles.WithLabelValues(eventID.String(), "error").Inc()
		return
	}
	observability.SyncCycles.WithLabelValues(eventID.String(), "ok").Inc()
}

func (s *Scheduler) cycle(ctx context.Context, logger *slog.Logger, eventID uuid.UUID) error {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if event == nil || !event.AutoSyncEnabled {
		return nil
	}

	cursor := event.ChangeCursor
	if cursor == "" {
		// First cycle for this event: anchor at the present, do not
		// re-process history the indexing run already covered.
		cursor, err = s.feed.BaselineCursor(ctx, event.Folder)
		if err != nil {
			return fmt.Errorf("baseline cursor: %w", err)
		}
		if err := s.store.UpdateSyncCursor(ctx, eventID, cursor, time.Now()); err != nil {
			return fmt.Errorf("persist baseline cursor: %w", err)
		}
		logger.Info("sync baseline established")
		return nil
	}

	next, changed, err := s.feed.ListChanges(ctx, event.Folder, cursor)
	if errors.Is(err, drive.ErrStaleCursor) {
		logger.Warn("change cursor stale, resetting to baseline")
		next, err = s.feed.BaselineCursor(ctx, event.Folder)
		if err != nil {
			return fmt.Errorf("reset stale cursor: %w", err)
		}
		if err := s.store.UpdateSyncCursor(ctx, eventID, next, time.Now()); err != nil {
			return fmt.Errorf("persist reset cursor: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("list changes: %w", err)
	}

	indexed := event.IndexedPhotos
	totalFaces := event.TotalFaces
	newPhotos := 0
	for _, photo := range changed {
		synced, err := s.store.IsSynced(ctx, eventID, photo.ID)
		if err != nil {
			return fmt.Errorf("check synced %s: %w", photo.ID, err)
		}
		if synced {
			continue
		}

		faces, err := s.indexer.IndexPhoto(ctx, event, photo)
		if err != nil {
			// Leave the photo unmarked; the next cycle retries it.
			logger.Warn("sync photo failed", "photo_id", photo.ID, "error", err)
			continue
		}
		if err := s.store.MarkSynced(ctx, eventID, photo.ID); err != nil {
			return fmt.Errorf("mark synced %s: %w", photo.ID, err)
		}
		indexed++
		totalFaces += faces
		newPhotos++
	}

	if newPhotos > 0 {
		if err := s.store.UpdateEventCounters(ctx, eventID, indexed, totalFaces); err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		s.cache.Invalidate(eventID)
		logger.Info("sync cycle indexed new photos", "photos", newPhotos, "faces", totalFaces-event.TotalFaces)
	}

	if err := s.store.UpdateSyncCursor(ctx, eventID, next, time.Now()); err != nil {
		return fmt.Errorf("persist cursor: %w", err)
	}
	return nil
}
