// Command indexer runs one indexing pass for a single event and exits. It
// shares checkpoints with the API service, so an interrupted run can be
// finished from either side.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/snapmatch/internal/config"
	"github.com/your-org/snapmatch/internal/drive"
	"github.com/your-org/snapmatch/internal/indexer"
	"github.com/your-org/snapmatch/internal/observability"
	"github.com/your-org/snapmatch/internal/search"
	"github.com/your-org/snapmatch/internal/storage"
	"github.com/your-org/snapmatch/internal/tasks"
	"github.com/your-org/snapmatch/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	eventIDStr := flag.String("event", "", "event id to index")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	eventID, err := uuid.Parse(*eventIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -event id %q\n", *eventIDStr)
		os.Exit(2)
	}

	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	source, err := drive.NewMinIODrive(cfg.Source)
	if err != nil {
		slog.Error("connect to photo source", "error", err)
		os.Exit(1)
	}

	ort.SetSharedLibraryPath(vision.LibraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	extractor, err := vision.NewONNXExtractor(cfg.Vision)
	if err != nil {
		slog.Error("vision pipeline init", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()
	slog.Info("vision pipeline ready", "mode", extractor.Mode())

	tracker := tasks.NewTracker()
	engine := search.NewEngine(db, cfg.Vision.EmbeddingDim)
	worker := indexer.NewWorker(db, source, extractor, tracker, engine, nil, cfg.Indexing)

	ctx := context.Background()
	taskID, err := worker.StartIndexing(ctx, eventID)
	if err != nil {
		slog.Error("start indexing", "error", err)
		os.Exit(1)
	}

	// Poll until the run finishes, echoing progress.
	lastProgress := -1
	for {
		task, ok := tracker.Get(taskID)
		if !ok {
			slog.Error("task vanished", "task_id", taskID)
			os.Exit(1)
		}
		if task.Progress != lastProgress {
			lastProgress = task.Progress
			slog.Info("indexing progress",
				"progress", task.Progress,
				"total", task.Total,
				"faces", task.FacesFound,
				"current", task.CurrentItem,
			)
		}
		if task.Status == tasks.StatusCompleted {
			slog.Info("indexing finished",
				"photos", task.Progress,
				"faces", task.FacesFound,
				"failures", len(task.ItemFailures),
			)
			for _, f := range task.ItemFailures {
				slog.Warn("photo failed", "photo", f.PhotoName, "reason", f.Reason)
			}
			return
		}
		if task.Status == tasks.StatusFailed {
			slog.Error("indexing failed", "error", task.Error)
			os.Exit(1)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
