package handlers

import (
	"net/http"
	"time"

	"gallery/internal/startup"
)

// VersionResponse is the build information plus process uptime.
type VersionResponse struct {
	startup.BuildInfo
	Uptime string `json:"uptime"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}
