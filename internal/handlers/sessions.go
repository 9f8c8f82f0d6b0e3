package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gallery/internal/medialist"
	"gallery/internal/session"
)

// NavigateResponse is a session's state after a move.
type NavigateResponse struct {
	Moved bool `json:"moved"`
	session.View
}

// GotoRequest selects the entry to make current. Exactly one field is used,
// checked in the order Index, ID, Name.
type GotoRequest struct {
	Index *int   `json:"index,omitempty"`
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ReloadRequest names the entry to rebuild the window around. A zero
// AnchorID uses the current entry.
type ReloadRequest struct {
	AnchorID int64 `json:"anchorId,omitempty"`
}

// InsertRequest adds a path at one end of the list.
type InsertRequest struct {
	Path  string `json:"path"`
	Front bool   `json:"front,omitempty"`
}

// StateRequest sets an entry's viewer state.
type StateRequest struct {
	State medialist.State `json:"state"`
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func entryIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, fmt.Errorf("%w: bad index %q", medialist.ErrInvalidFilter, mux.Vars(r)["index"])
	}
	return index, nil
}

func withEntries(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("entries"))
	return v
}

// CreateSession opens a session over the collection described by the
// filter in the request body.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var f medialist.Filter
	if !decodeJSON(w, r, &f, false) {
		return
	}

	s, err := h.sessions.Create(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}

	var v session.View
	err = s.Do(r.Context(), func(e *medialist.Engine) error {
		v = s.ViewOf(e, withEntries(r))
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID)
	writeJSONStatusCode(w, http.StatusCreated, v)
}

// GetSession returns a session's state. Pass entries=true to include the
// loaded entries.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var v session.View
	err := s.Do(r.Context(), func(e *medialist.Engine) error {
		v = s.ViewOf(e, withEntries(r))
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// CloseSession closes a session and releases its list.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) navigate(w http.ResponseWriter, r *http.Request, move func(e *medialist.Engine) (bool, error)) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var resp NavigateResponse
	err := s.Do(r.Context(), func(e *medialist.Engine) error {
		moved, err := move(e)
		if err != nil {
			return err
		}
		resp.Moved = moved
		resp.View = s.ViewOf(e, false)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// Next moves to the next loaded entry.
func (h *Handlers) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(e *medialist.Engine) (bool, error) {
		_, moved := e.MoveNext()
		return moved, nil
	})
}

// Prev moves to the previous loaded entry.
func (h *Handlers) Prev(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(e *medialist.Engine) (bool, error) {
		_, moved := e.MovePrev()
		return moved, nil
	})
}

// Shuffle moves to the next loaded entry in shuffle order.
func (h *Handlers) Shuffle(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(e *medialist.Engine) (bool, error) {
		_, moved := e.NextShuffled()
		return moved, nil
	})
}

// Goto makes the requested entry current.
func (h *Handlers) Goto(w http.ResponseWriter, r *http.Request) {
	var req GotoRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Index == nil && req.ID == 0 && req.Name == "" {
		writeJSONError(w, "One of index, id or name is required", http.StatusBadRequest)
		return
	}

	h.navigate(w, r, func(e *medialist.Engine) (bool, error) {
		var (
			c     medialist.Cursor
			found bool
		)
		switch {
		case req.Index != nil:
			c, found = e.FindByIndex(*req.Index)
		case req.ID != 0:
			c, found = e.FindByID(req.ID)
		default:
			c, found = e.FindByFilename(req.Name)
		}
		if !found {
			return false, fmt.Errorf("%w: entry is not loaded", medialist.ErrItemNotFound)
		}
		return true, e.MoveTo(c)
	})
}

// Reload rebuilds the session's window around an anchor entry.
func (h *Handlers) Reload(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var (
		v         session.View
		anchorErr error
	)
	err := s.Do(r.Context(), func(e *medialist.Engine) error {
		anchor := req.AnchorID
		if anchor == 0 {
			if cur, ok := e.Entry(e.Current()); ok {
				anchor = cur.ID
			}
		}
		_, err := e.Reload(r.Context(), anchor)
		if errors.Is(err, medialist.ErrItemNotFound) {
			// Rebuilt around the anchor's old position.
			anchorErr, err = err, nil
		}
		if err != nil {
			return err
		}
		v = s.ViewOf(e, withEntries(r))
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if anchorErr != nil {
		w.Header().Set("X-Anchor-Missing", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// InsertEntry appends or prepends a path to the loaded list.
func (h *Handlers) InsertEntry(w http.ResponseWriter, r *http.Request) {
	var req InsertRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Path == "" {
		writeJSONError(w, "Path is required", http.StatusBadRequest)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var v session.View
	status := http.StatusOK
	err := s.Do(r.Context(), func(e *medialist.Engine) error {
		var err error
		if req.Front {
			_, err = e.Prepend(r.Context(), req.Path)
		} else {
			_, err = e.Append(r.Context(), req.Path)
		}
		if errors.Is(err, medialist.ErrQueued) {
			// Applied when loading finishes; failures show up in rejected.
			status, err = http.StatusAccepted, nil
		}
		if err != nil {
			return err
		}
		v = s.ViewOf(e, false)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatusCode(w, status, v)
}

// DeleteEntry removes the entry at the given index from the list. With
// underlying=true the media file is deleted as well.
func (h *Handlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	index, err := entryIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	underlying, _ := strconv.ParseBool(r.URL.Query().Get("underlying"))
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var v session.View
	err = s.Do(r.Context(), func(e *medialist.Engine) error {
		c, found := e.FindByIndex(index)
		if !found {
			return fmt.Errorf("%w: index %d is not loaded", medialist.ErrItemNotFound, index)
		}
		if err := e.Delete(r.Context(), c, underlying); err != nil {
			return err
		}
		v = s.ViewOf(e, false)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v)
}

// SetEntryState records the viewer state of the entry at the given index.
func (h *Handlers) SetEntryState(w http.ResponseWriter, r *http.Request) {
	index, err := entryIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req StateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	err = s.Do(r.Context(), func(e *medialist.Engine) error {
		c, found := e.FindByIndex(index)
		if !found {
			return fmt.Errorf("%w: index %d is not loaded", medialist.ErrItemNotFound, index)
		}
		return e.SetState(c, req.State)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, "ok")
}
