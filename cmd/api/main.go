package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/snapmatch/internal/api"
	"github.com/your-org/snapmatch/internal/api/ws"
	"github.com/your-org/snapmatch/internal/autosync"
	"github.com/your-org/snapmatch/internal/config"
	"github.com/your-org/snapmatch/internal/drive"
	"github.com/your-org/snapmatch/internal/indexer"
	"github.com/your-org/snapmatch/internal/observability"
	"github.com/your-org/snapmatch/internal/queue"
	"github.com/your-org/snapmatch/internal/search"
	"github.com/your-org/snapmatch/internal/storage"
	"github.com/your-org/snapmatch/internal/tasks"
	"github.com/your-org/snapmatch/internal/vision"
	"github.com/your-org/snapmatch/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting snapmatch API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to the photo source
	source, err := drive.NewMinIODrive(cfg.Source)
	if err != nil {
		slog.Error("connect to photo source", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Broadcast task progress from the queue to websocket subscribers
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create task consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeTasks(ctx, "api-tasks", func(ctx context.Context, msg jetstream.Msg) error {
		var task tasks.Task
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			return err
		}
		hub.BroadcastTask(&dto.WSTaskEvent{
			Type:    "task_progress",
			EventID: task.EventID,
			Task: dto.TaskParcel{
				ID:         task.ID,
				Status:     string(task.Status),
				Progress:   task.Progress,
				Total:      task.Total,
				FacesFound: task.FacesFound,
				Error:      task.Error,
			},
		})
		return nil
	})
	if err != nil {
		slog.Warn("start task consumer", "error", err)
	}

	// Initialize ONNX Runtime for face detection and embedding
	var extractor vision.Extractor

	ort.SetSharedLibraryPath(vision.LibraryPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — indexing/search will be unavailable", "error", err)
	} else {
		onnx, err := vision.NewONNXExtractor(cfg.Vision)
		if err != nil {
			slog.Warn("vision pipeline init failed — indexing/search will be unavailable", "error", err)
		} else {
			extractor = onnx
			defer onnx.Close()
			defer ort.DestroyEnvironment()
			slog.Info("vision pipeline ready", "mode", onnx.Mode())
		}
	}

	tracker := tasks.NewTracker()
	engine := search.NewEngine(db, cfg.Vision.EmbeddingDim)
	worker := indexer.NewWorker(db, source, extractor, tracker, engine, producer, cfg.Indexing)

	scheduler := autosync.NewScheduler(db, source, worker, engine, cfg.Sync)
	if err := scheduler.ResumeAll(ctx); err != nil {
		slog.Warn("resume auto-sync loops", "error", err)
	}
	defer scheduler.Shutdown()

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		Server:    cfg.Server,
		Search:    cfg.Search,
		Sync:      cfg.Sync,
		DB:        db,
		Source:    source,
		Producer:  producer,
		Hub:       hub,
		Worker:    worker,
		Tracker:   tracker,
		Engine:    engine,
		Scheduler: scheduler,
		Extractor: extractor,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
