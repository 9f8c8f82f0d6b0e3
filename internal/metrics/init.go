package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, strategy := range []string{"eager", "windowed", "reload"} {
		ListLoadDuration.WithLabelValues(strategy)
		for _, status := range []string{"success", "invalid_filter", "empty", "not_found", "source_error"} {
			ListLoadsTotal.WithLabelValues(strategy, status)
		}
	}

	for _, op := range []string{"delete", "append", "prepend"} {
		ListMutationsTotal.WithLabelValues(op, "direct")
		ListMutationsTotal.WithLabelValues(op, "queued")
	}

	for _, kind := range []string{"insert", "update", "delete"} {
		ListChangeEventsTotal.WithLabelValues(kind)
	}

	for _, outcome := range []string{"completed", "cancelled", "failed"} {
		LoaderRunsTotal.WithLabelValues(outcome)
	}

	for _, dir := range []string{"forward", "backward"} {
		LoaderChunkDuration.WithLabelValues(dir)
		LoaderEntriesLoaded.WithLabelValues(dir)
	}

	for _, op := range []string{"count", "query", "query_by_path", "index_of", "delete_file",
		"upsert_file", "batch", "rename_file", "add_favorite", "tag_file", "calculate_stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, ev := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}

	for _, op := range []string{"stat", "readdir"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, kind := range []string{"image", "video", "unknown"} {
		LibraryFilesTotal.WithLabelValues(kind)
	}
}
