package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/snapmatch/internal/api/handlers"
	"github.com/your-org/snapmatch/internal/api/ws"
	"github.com/your-org/snapmatch/internal/auth"
	"github.com/your-org/snapmatch/internal/autosync"
	"github.com/your-org/snapmatch/internal/config"
	"github.com/your-org/snapmatch/internal/drive"
	"github.com/your-org/snapmatch/internal/indexer"
	"github.com/your-org/snapmatch/internal/queue"
	"github.com/your-org/snapmatch/internal/search"
	"github.com/your-org/snapmatch/internal/storage"
	"github.com/your-org/snapmatch/internal/tasks"
	"github.com/your-org/snapmatch/internal/vision"
)

type RouterConfig struct {
	Server    config.ServerConfig
	Search    config.SearchConfig
	Sync      config.SyncConfig
	DB        *storage.PostgresStore
	Source    *drive.MinIODrive
	Producer  *queue.Producer
	Hub       *ws.Hub
	Worker    *indexer.Worker
	Tracker   *tasks.Tracker
	Engine    *search.Engine
	Scheduler *autosync.Scheduler
	// Extractor is nil when the vision runtime is unavailable; search
	// endpoints then answer 503 while the rest of the API stays up.
	Extractor vision.Extractor
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Source, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.RequireKey(cfg.Server.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Events & indexing
	eventH := handlers.NewEventHandler(cfg.DB, cfg.Worker)
	v1.POST("/events", eventH.Create)
	v1.GET("/events", eventH.List)
	v1.GET("/events/:id", eventH.Get)
	v1.DELETE("/events/:id", eventH.Delete)
	v1.POST("/events/:id/index", eventH.StartIndexing)

	// Tasks
	taskH := handlers.NewTaskHandler(cfg.Tracker)
	v1.GET("/tasks/:id", taskH.Get)
	v1.GET("/events/:id/task", taskH.LatestForEvent)

	// Search
	searchH := handlers.NewSearchHandler(cfg.Engine, cfg.Search.DefaultTolerance, cfg.Server.MaxUploadSize)
	searchH.Extractor = cfg.Extractor
	v1.POST("/events/:id/search", searchH.Search)

	// Auto-sync
	syncH := handlers.NewSyncHandler(cfg.Scheduler, cfg.Sync.DefaultIntervalMinutes)
	v1.POST("/events/:id/sync", syncH.Enable)
	v1.DELETE("/events/:id/sync", syncH.Disable)
	v1.GET("/events/:id/sync", syncH.Status)

	return r
}
