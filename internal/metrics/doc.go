// Package metrics provides Prometheus instrumentation for the gallery engine.
//
// All metrics are prefixed with "gallery_" and registered with the default
// registry through promauto. Mount promhttp.Handler() to expose them.
//
// # Metric Categories
//
// List metrics track the foreground side of a media list:
//   - ListLoadsTotal: loads by strategy (eager/windowed/reload) and status
//   - ListLoadDuration: duration of the synchronous window load
//   - ListMutationsTotal: delete/append/prepend, applied directly or queued behind a loader
//   - ListChangeEventsTotal: change notifications consumed
//
// Loader metrics track background expansion:
//   - LoaderRunsTotal: runs by terminal state (completed/cancelled/failed)
//   - LoaderActive: loaders currently expanding
//   - LoaderChunkDuration, LoaderEntriesLoaded: per half-step chunk
//   - LoaderCancelWait: how long teardown waited for the loader to acknowledge exit
//
// Database, watcher, filesystem retry, HTTP and library gauges follow the
// same pattern. A [Collector] refreshes the library gauges from a
// [StatsProvider] on an interval and whenever the library changes:
//
//	collector := metrics.NewCollector(db, time.Minute)
//	hub.Subscribe(func(changes.Change) { collector.Refresh() })
//	go collector.Run(ctx)
//
// Useful queries:
//
//	sum(rate(gallery_loader_runs_total{outcome="cancelled"}[5m]))
//	histogram_quantile(0.95, sum(rate(gallery_loader_chunk_duration_seconds_bucket[5m])) by (le))
package metrics
