package database

import (
	"time"

	"gallery/internal/mediatypes"
)

// MediaFile is a row of the files table.
type MediaFile struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Path          string          `json:"path"`
	ParentPath    string          `json:"parentPath"`
	Kind          mediatypes.Kind `json:"kind"`
	Size          int64           `json:"size"`
	ModTime       time.Time       `json:"modTime"`
	TakenAt       time.Time       `json:"takenAt,omitzero"`
	Place         string          `json:"place,omitempty"`
	Hidden        bool            `json:"hidden,omitempty"`
	ThumbnailPath string          `json:"thumbnailPath,omitempty"`
}

// Tag is a named label with its usage count.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ItemCount int       `json:"itemCount"`
	CreatedAt time.Time `json:"createdAt"`
}
