package medialist

import (
	"fmt"
	"path/filepath"

	"gallery/internal/mediatypes"
)

// State is the lifecycle state of an entry as seen by the viewer.
type State int

const (
	StateReady State = iota
	StateLoading
	StateLoaded
	StateError
)

var stateNames = [...]string{"ready", "loading", "loaded", "error"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown entry state %q", text)
}

// Entry is one media item of a list.
type Entry struct {
	ID            int64           `json:"id"`
	Path          string          `json:"path"`
	ThumbnailPath string          `json:"thumbnailPath,omitempty"`
	Kind          mediatypes.Kind `json:"kind"`
	// Index is the entry's rank in the full ordered collection.
	Index int   `json:"index"`
	State State `json:"state"`
}

// Filename returns the last element of the entry's path.
func (e Entry) Filename() string {
	return filepath.Base(e.Path)
}
