package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gallery/internal/database"
	"gallery/internal/indexer"
	"gallery/internal/session"
)

// Indexer is the part of the indexer the handlers report on and trigger.
type Indexer interface {
	GetHealthStatus() indexer.HealthStatus
	IsIndexing() bool
	Index(ctx context.Context) (indexer.Result, error)
}

// Handlers serves the gallery API.
type Handlers struct {
	db        *database.Database
	indexer   Indexer
	sessions  *session.Manager
	startTime time.Time
}

// New creates the handlers.
func New(db *database.Database, idx Indexer, sessions *session.Manager) *Handlers {
	return &Handlers{
		db:        db,
		indexer:   idx,
		sessions:  sessions,
		startTime: time.Now(),
	}
}

// Router registers every route on a new router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/reindex", h.TriggerReindex).Methods(http.MethodPost)

	// Sessions
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.CloseSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/next", h.Next).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/prev", h.Prev).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/shuffle", h.Shuffle).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/goto", h.Goto).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/reload", h.Reload).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/entries", h.InsertEntry).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/entries/{index:[0-9]+}", h.DeleteEntry).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/entries/{index:[0-9]+}/state", h.SetEntryState).Methods(http.MethodPut)

	// Library
	api.HandleFunc("/files/rename", h.RenameFile).Methods(http.MethodPost)
	api.HandleFunc("/favorites", h.AddFavorite).Methods(http.MethodPost)
	api.HandleFunc("/favorites", h.RemoveFavorite).Methods(http.MethodDelete)
	api.HandleFunc("/favorites/check", h.CheckFavorite).Methods(http.MethodGet)
	api.HandleFunc("/tags", h.GetAllTags).Methods(http.MethodGet)
	api.HandleFunc("/tags/file", h.AddTagToFile).Methods(http.MethodPost)
	api.HandleFunc("/tags/file", h.RemoveTagFromFile).Methods(http.MethodDelete)

	return r
}
