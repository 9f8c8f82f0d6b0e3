package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"gallery/internal/indexer"
	"gallery/internal/logging"
	"gallery/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Ready       bool   `json:"ready"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Indexing    bool   `json:"indexing"`
	LastIndexed string `json:"lastIndexed,omitempty"`

	FilesIndexed int64 `json:"filesIndexed"`
	IndexErrors  int64 `json:"indexErrors"`
	Sessions     int   `json:"sessions"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	healthStatus := h.indexer.GetHealthStatus()

	response := HealthResponse{
		Ready:        healthStatus.Ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Indexing:     healthStatus.Indexing,
		FilesIndexed: healthStatus.LastResult.Files,
		IndexErrors:  healthStatus.LastResult.Errors,
		Sessions:     h.sessions.Len(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if healthStatus.IndexProgress != nil {
		response.FilesIndexed = healthStatus.IndexProgress.FilesIndexed
	}

	switch {
	case !healthStatus.Ready:
		response.Status = statusStarting
	case healthStatus.LastResult.Errors > 0:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	if !healthStatus.LastIndexed.IsZero() {
		response.LastIndexed = healthStatus.LastIndexed.Format(time.RFC3339)
	}

	// Return 503 only if not ready at all
	statusCode := http.StatusOK
	if !healthStatus.Ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONStatusCode(w, statusCode, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the first index has completed
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.GetHealthStatus().Ready {
		writeJSONStatusCode(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatusCode(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// StatsResponse reports library totals and the last index run.
type StatsResponse struct {
	TotalImages    int            `json:"totalImages"`
	TotalVideos    int            `json:"totalVideos"`
	TotalFavorites int            `json:"totalFavorites"`
	TotalTags      int            `json:"totalTags"`
	Sessions       int            `json:"sessions"`
	LastIndexed    time.Time      `json:"lastIndexed,omitzero"`
	LastIndex      indexer.Result `json:"lastIndex"`
}

// GetStats returns library statistics
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.db.LibraryStats()
	health := h.indexer.GetHealthStatus()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, StatsResponse{
		TotalImages:    stats.TotalImages,
		TotalVideos:    stats.TotalVideos,
		TotalFavorites: stats.TotalFavorites,
		TotalTags:      stats.TotalTags,
		Sessions:       h.sessions.Len(),
		LastIndexed:    health.LastIndexed,
		LastIndex:      health.LastResult,
	})
}

// TriggerReindex starts a full index in the background
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	if h.indexer.IsIndexing() {
		writeJSONError(w, indexer.ErrIndexing.Error(), http.StatusConflict)
		return
	}

	go func() {
		// Detached from the request so the run outlives it.
		result, err := h.indexer.Index(context.Background())
		switch {
		case errors.Is(err, indexer.ErrIndexing):
			logging.Debug("Reindex skipped, a run is already in progress")
		case err != nil:
			logging.Error("Reindex failed: %v", err)
		default:
			logging.Info("Reindex complete: %d files in %v", result.Files, result.Duration)
		}
	}()

	writeJSONStatusCode(w, http.StatusAccepted, map[string]string{"status": "started"})
}
