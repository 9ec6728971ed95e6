// Package indexer runs the background face-indexing pipeline: list an
// event's photos, skip the ones a checkpoint already covers, and for the rest
// download, extract faces, persist, and checkpoint.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/config"
	"github.com/your-org/snapmatch/internal/drive"
	"github.com/your-org/snapmatch/internal/models"
	"github.com/your-org/snapmatch/internal/observability"
	"github.com/your-org/snapmatch/internal/tasks"
	"github.com/your-org/snapmatch/internal/vision"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	UpdateEventStatus(ctx context.Context, id uuid.UUID, status models.IndexingStatus) error
	UpdateEventCounters(ctx context.Context, id uuid.UUID, indexedPhotos, totalFaces int) error
	AppendFace(ctx context.Context, face *models.FaceRecord) error
	ClearFaces(ctx context.Context, eventID uuid.UUID) error
	Checkpoints(ctx context.Context, eventID uuid.UUID) (map[string]models.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error
	ClearCheckpoints(ctx context.Context, eventID uuid.UUID) error
}

// Source is the photo origin: listing plus per-photo download.
type Source interface {
	drive.Lister
	drive.Downloader
}

// Invalidator drops cached search state for an event after its corpus changes.
type Invalidator interface {
	Invalidate(eventID uuid.UUID)
}

// Publisher pushes task progress onto the queue for live subscribers.
// Publishing is best effort; a broker outage never aborts a run.
type Publisher interface {
	PublishTask(ctx context.Context, task tasks.Task) error
}

// Worker owns indexing runs. One run per event at a time; starting an event
// that is already running returns the running task instead of a new one.
type Worker struct {
	store     Store
	source    Source
	extractor vision.Extractor
	tracker   *tasks.Tracker
	cache     Invalidator
	publisher Publisher
	cfg       config.IndexingConfig
	logger    *slog.Logger
}

func NewWorker(
	store Store,
	source Source,
	extractor vision.Extractor,
	tracker *tasks.Tracker,
	cache Invalidator,
	publisher Publisher,
	cfg config.IndexingConfig,
) *Worker {
	return &Worker{
		store:     store,
		source:    source,
		extractor: extractor,
		tracker:   tracker,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// StartIndexing launches a background run for the event and returns the task
// id to poll. If a run is already active for the event, its id is returned.
func (w *Worker) StartIndexing(ctx context.Context, eventID uuid.UUID) (uuid.UUID, error) {
	if w.extractor == nil {
		return uuid.Nil, fmt.Errorf("vision pipeline not initialized")
	}

	event, err := w.store.GetEvent(ctx, eventID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	if event == nil {
		return uuid.Nil, fmt.Errorf("event %s not found", eventID)
	}

	taskID, created := w.tracker.CreateIfIdle(eventID, 0)
	if !created {
		return taskID, nil
	}

	go w.run(context.WithoutCancel(ctx), taskID, event)
	return taskID, nil
}

func (w *Worker) run(ctx context.Context, taskID uuid.UUID, event *models.Event) {
	logger := w.logger.With("event_id", event.ID, "task_id", taskID)
	start := time.Now()
	observability.ActiveIndexRuns.Inc()
	defer observability.ActiveIndexRuns.Dec()
	defer func() {
		observability.IndexRunDuration.Observe(time.Since(start).Seconds())
	}()

	_ = w.tracker.Start(taskID)
	if err := w.store.UpdateEventStatus(ctx, event.ID, models.IndexingRunning); err != nil {
		logger.Error("update event status", "error", err)
	}

	// The run may have appended faces before dying, so the fail path drops
	// the cached matrix too.
	fail := func(msg string, err error) {
		logger.Error(msg, "error", err)
		_ = w.tracker.Fail(taskID, fmt.Sprintf("%s: %v", msg, err))
		if serr := w.store.UpdateEventStatus(ctx, event.ID, models.IndexingFailed); serr != nil {
			logger.Error("update event status", "error", serr)
		}
		w.cache.Invalidate(event.ID)
		w.notify(ctx, taskID)
	}

	w.cache.Invalidate(event.ID)

	photos, err := w.source.ListPhotos(ctx, event.Folder)
	if err != nil {
		fail("list photos", err)
		return
	}

	done, err := w.store.Checkpoints(ctx, event.ID)
	if err != nil {
		fail("load checkpoints", err)
		return
	}

	// No checkpoints means a fresh full run, not a resume. Drop any corpus
	// left by an earlier run so re-indexing never duplicates faces.
	if len(done) == 0 && (event.IndexedPhotos > 0 || event.TotalFaces > 0) {
		if err := w.store.ClearFaces(ctx, event.ID); err != nil {
			fail("clear previous faces", err)
			return
		}
		event.IndexedPhotos = 0
		event.TotalFaces = 0
		if err := w.store.UpdateEventCounters(ctx, event.ID, 0, 0); err != nil {
			logger.Error("reset event counters", "error", err)
		}
	}

	total := len(photos)
	_ = w.tracker.Update(taskID, 0, total, "", 0)
	logger.Info("indexing run started", "photos", total, "checkpointed", len(done))

	indexed := event.IndexedPhotos
	totalFaces := event.TotalFaces
	processed := 0
	runFaces := 0

	for _, photo := range photos {
		if ctx.Err() != nil {
			fail("run canceled", ctx.Err())
			return
		}
		if _, ok := done[photo.ID]; ok {
			processed++
			_ = w.tracker.Update(taskID, processed, total, "", runFaces)
			continue
		}

		faces, err := w.IndexPhoto(ctx, event, photo)
		processed++
		if err != nil {
			// Download and extraction errors cost this photo only; the
			// photo stays uncheckpointed so a later run retries it.
			// Anything else is a store failure, fatal to the whole run.
			reason, recoverable := classifyPhotoError(err)
			if !recoverable {
				fail("store faces for "+photo.Name, err)
				return
			}
			logger.Warn("photo failed", "photo_id", photo.ID, "photo_name", photo.Name, "error", err)
			observability.PhotoFailures.WithLabelValues(event.ID.String(), reason).Inc()
			_ = w.tracker.RecordItemFailure(taskID, photo.ID, photo.Name, err.Error())
			_ = w.tracker.Update(taskID, processed, total, photo.Name, runFaces)
			w.notify(ctx, taskID)
			continue
		}

		if faces > 0 {
			w.cache.Invalidate(event.ID)
		}
		cp := &models.Checkpoint{
			EventID:     event.ID,
			PhotoID:     photo.ID,
			PhotoName:   photo.Name,
			FacesFound:  faces,
			ProcessedAt: time.Now(),
		}
		if err := w.store.SaveCheckpoint(ctx, cp); err != nil {
			fail("checkpoint "+photo.Name, err)
			return
		}

		indexed++
		totalFaces += faces
		runFaces += faces
		_ = w.tracker.Update(taskID, processed, total, photo.Name, runFaces)
		if err := w.store.UpdateEventCounters(ctx, event.ID, indexed, totalFaces); err != nil {
			logger.Error("update event counters", "error", err)
		}
		w.notify(ctx, taskID)
	}

	if err := w.store.ClearCheckpoints(ctx, event.ID); err != nil {
		fail("clear checkpoints", err)
		return
	}
	if err := w.store.UpdateEventStatus(ctx, event.ID, models.IndexingCompleted); err != nil {
		logger.Error("update event status", "error", err)
	}
	w.cache.Invalidate(event.ID)
	_ = w.tracker.Complete(taskID)
	w.notify(ctx, taskID)
	logger.Info("indexing run finished", "processed", processed, "faces", runFaces, "duration", time.Since(start))
}

// classifyPhotoError sorts a per-photo error into a metrics reason and
// whether the run can absorb it. Download and extraction errors are costs of
// the one photo; everything else means the store is misbehaving and the run
// must stop before checkpointing work it cannot persist.
func classifyPhotoError(err error) (reason string, recoverable bool) {
	var terr *drive.TransportError
	if errors.As(err, &terr) {
		return "download", true
	}
	var perr *vision.ProcessingError
	if errors.As(err, &perr) {
		return "extract", true
	}
	return "store", false
}

// IndexPhoto downloads one photo, extracts its faces and stores the records.
// It returns the number of faces found; zero faces without an error is a
// normal result. Checkpointing is the indexing run's business, not this
// function's: the auto-sync path shares it and tracks its own SyncedPhoto
// markers instead.
func (w *Worker) IndexPhoto(ctx context.Context, event *models.Event, photo drive.PhotoRef) (int, error) {
	data, err := w.download(ctx, photo)
	if err != nil {
		return 0, err
	}

	faces, err := w.extractor.Extract(data)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", photo.Name, err)
	}

	for _, f := range faces {
		rec := &models.FaceRecord{
			ID:        uuid.New(),
			EventID:   event.ID,
			PhotoID:   photo.ID,
			PhotoName: photo.Name,
			Embedding: f.Embedding,
			Box:       f.Box,
			IndexedAt: time.Now(),
		}
		if err := w.store.AppendFace(ctx, rec); err != nil {
			return 0, fmt.Errorf("store face for %s: %w", photo.Name, err)
		}
	}

	observability.PhotosIndexed.WithLabelValues(event.ID.String()).Inc()
	observability.FacesExtracted.WithLabelValues(event.ID.String()).Add(float64(len(faces)))
	return len(faces), nil
}

// download retries transient fetch errors with exponential backoff before
// giving up on the photo.
func (w *Worker) download(ctx context.Context, photo drive.PhotoRef) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < w.cfg.DownloadRetries; attempt++ {
		if attempt > 0 {
			observability.DownloadRetries.Inc()
			select {
			case <-time.After(w.cfg.DownloadBackoff << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		data, err := w.source.Download(ctx, photo.ID)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("download %s after %d attempts: %w", photo.Name, w.cfg.DownloadRetries, lastErr)
}

func (w *Worker) notify(ctx context.Context, taskID uuid.UUID) {
	if w.publisher == nil {
		return
	}
	t, ok := w.tracker.Get(taskID)
	if !ok {
		return
	}
	if err := w.publisher.PublishTask(ctx, t); err != nil {
		w.logger.Warn("publish task update", "task_id", taskID, "error", err)
	}
}
