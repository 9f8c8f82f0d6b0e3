package handlers

import (
	"net/http"

	"gallery/internal/database"
)

// RenameRequest moves a library file to a new path.
type RenameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

// PathRequest names a library file.
type PathRequest struct {
	Path string `json:"path"`
}

// TagRequest adds or removes a tag on a file.
type TagRequest struct {
	Path string `json:"path"`
	Tag  string `json:"tag"`
}

// RenameFile records a rename. Open sessions patch the entry in place.
func (h *Handlers) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		writeJSONError(w, "oldPath and newPath are required", http.StatusBadRequest)
		return
	}

	if err := h.db.RenameFile(r.Context(), req.OldPath, req.NewPath); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// AddFavorite marks a file as a favorite.
func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Path == "" {
		writeJSONError(w, "Path is required", http.StatusBadRequest)
		return
	}

	if err := h.db.AddFavorite(r.Context(), req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// RemoveFavorite unmarks a favorite.
func (h *Handlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Path == "" {
		writeJSONError(w, "Path is required", http.StatusBadRequest)
		return
	}

	if err := h.db.RemoveFavorite(r.Context(), req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// CheckFavorite reports whether the file in the path query parameter is a
// favorite.
func (h *Handlers) CheckFavorite(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, "Path is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]bool{"isFavorite": h.db.IsFavorite(r.Context(), path)})
}

// GetAllTags returns all tags
func (h *Handlers) GetAllTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.db.ListTags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []database.Tag{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, tags)
}

// AddTagToFile adds a tag to a file
func (h *Handlers) AddTagToFile(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Path == "" || req.Tag == "" {
		writeJSONError(w, "Path and tag are required", http.StatusBadRequest)
		return
	}

	if err := h.db.TagFile(r.Context(), req.Path, req.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// RemoveTagFromFile removes a tag from a file
func (h *Handlers) RemoveTagFromFile(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Path == "" || req.Tag == "" {
		writeJSONError(w, "Path and tag are required", http.StatusBadRequest)
		return
	}

	if err := h.db.UntagFile(r.Context(), req.Path, req.Tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}
