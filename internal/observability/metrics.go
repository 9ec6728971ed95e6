package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapmatch",
		Name:      "photos_indexed_total",
		Help:      "Total number of photos successfully indexed",
	}, []string{"event_id"})

	FacesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapmatch",
		Name:      "faces_extracted_total",
		Help:      "Total number of face embeddings extracted and stored",
	}, []string{"event_id"})

	PhotoFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapmatch",
		Name:      "photo_failures_total",
		Help:      "Total number of photos that failed download or extraction",
	}, []string{"event_id", "reason"})

	DownloadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "snapmatch",
		Name:      "download_retries_total",
		Help:      "Total number of photo download retry attempts",
	})

	IndexRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snapmatch",
		Name:      "index_run_duration_seconds",
		Help:      "Duration of complete indexing runs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "snapmatch",
		Name:      "search_duration_seconds",
		Help:      "Duration of face similarity searches",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	ActiveIndexRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "snapmatch",
		Name:      "active_index_runs",
		Help:      "Number of indexing runs currently executing",
	})

	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snapmatch",
		Name:      "sync_cycles_total",
		Help:      "Total number of auto-sync poll cycles",
	}, []string{"event_id", "result"})

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "snapmatch",
		Name:      "search_cache_entries",
		Help:      "Number of events with a resident embedding cache",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snapmatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "snapmatch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
