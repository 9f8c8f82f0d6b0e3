package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBRowsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_db_rows_returned",
			Help:    "Number of rows returned by range queries",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Media list metrics
var (
	ListLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_list_loads_total",
			Help: "Total number of list loads by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	ListLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_list_load_duration_seconds",
			Help:    "Duration of the synchronous part of a list load",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"strategy"},
	)

	ListMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_list_mutations_total",
			Help: "Structural list mutations by operation and whether they were queued behind a loader",
		},
		[]string{"operation", "mode"},
	)

	ListUnderlyingDeleteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_list_underlying_delete_errors_total",
			Help: "Failed deletions of the underlying item (local removal still applied)",
		},
	)

	ListChangeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_list_change_events_total",
			Help: "Change notifications consumed by media lists",
		},
		[]string{"kind"},
	)
)

// Background loader metrics
var (
	LoaderRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_loader_runs_total",
			Help: "Background loader runs by terminal state",
		},
		[]string{"outcome"},
	)

	LoaderActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_loader_active",
			Help: "Number of background loaders currently expanding",
		},
	)

	LoaderChunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_loader_chunk_duration_seconds",
			Help:    "Duration of one half-step chunk load",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"direction"},
	)

	LoaderEntriesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_loader_entries_loaded_total",
			Help: "Entries merged into lists by background loaders",
		},
		[]string{"direction"},
	)

	LoaderCancelWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_loader_cancel_wait_seconds",
			Help:    "Time the foreground waited for a cancelled loader to acknowledge exit",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_running",
			Help: "Whether the indexer is currently running (1 = running, 0 = idle)",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_indexer_files_processed_total",
			Help: "Total number of media files processed by the indexer",
		},
	)

	IndexerParallelWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_indexer_parallel_workers",
			Help: "Number of parallel workers used by the indexer",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_retry_attempts_total",
			Help: "Retries issued after stale file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_filesystem_retry_failures_total",
			Help: "Operations that still failed after all retries",
		},
		[]string{"operation"},
	)
)

// Library metrics
var (
	LibraryFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_library_files_total",
			Help: "Indexed media files by kind",
		},
		[]string{"kind"},
	)

	LibraryFavoritesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_library_favorites_total",
			Help: "Total number of favorites",
		},
	)

	LibraryTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_library_tags_total",
			Help: "Total number of tags",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_sessions_active",
			Help: "Number of open viewer sessions",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
