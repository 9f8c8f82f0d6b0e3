package medialist

import (
	"fmt"
	"strings"
	"time"

	"gallery/internal/mediatypes"
)

// Scope selects which items are logically in a collection.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeFavorites
	ScopeTag
	ScopeFolder
	ScopeHiddenFolder
	ScopePlace
	ScopeTimeline
	ScopeFile
	ScopeDirectory
	ScopeSelectedList
)

var scopeNames = [...]string{
	ScopeAll:          "all",
	ScopeFavorites:    "favorites",
	ScopeTag:          "tag",
	ScopeFolder:       "folder",
	ScopeHiddenFolder: "hidden-folder",
	ScopePlace:        "place",
	ScopeTimeline:     "timeline",
	ScopeFile:         "file",
	ScopeDirectory:    "directory",
	ScopeSelectedList: "selected",
}

func (s Scope) String() string {
	if s.valid() {
		return scopeNames[s]
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

func (s Scope) valid() bool {
	return s >= ScopeAll && s <= ScopeSelectedList
}

// ParseScope parses the name produced by String.
func ParseScope(name string) (Scope, error) {
	for i, n := range scopeNames {
		if n == strings.ToLower(name) {
			return Scope(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown scope %q", ErrInvalidFilter, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: unknown scope %d", ErrInvalidFilter, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// windowed reports whether a scope can be loaded around a start index.
func (s Scope) windowed() bool {
	switch s {
	case ScopeFile, ScopeDirectory, ScopeSelectedList:
		return false
	}
	return s.valid()
}

// MediaType restricts a collection to one kind of media.
type MediaType int

const (
	MediaAll MediaType = iota
	MediaImages
	MediaVideos
)

var mediaTypeNames = [...]string{"all", "images", "videos"}

func (m MediaType) String() string {
	if m >= MediaAll && m <= MediaVideos {
		return mediaTypeNames[m]
	}
	return fmt.Sprintf("media(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m MediaType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MediaType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "all":
		*m = MediaAll
	case "images", "image":
		*m = MediaImages
	case "videos", "video":
		*m = MediaVideos
	default:
		return fmt.Errorf("%w: unknown media type %q", ErrInvalidFilter, text)
	}
	return nil
}

// Kind returns the entry kind this media type admits, or false for MediaAll.
func (m MediaType) Kind() (mediatypes.Kind, bool) {
	switch m {
	case MediaImages:
		return mediatypes.KindImage, true
	case MediaVideos:
		return mediatypes.KindVideo, true
	}
	return mediatypes.KindUnknown, false
}

// Sort is the rank order of a collection.
type Sort struct {
	Field mediatypes.SortField `json:"field,omitempty"`
	Order mediatypes.SortOrder `json:"order,omitempty"`
}

// Filter describes a collection and where to open it.
type Filter struct {
	Scope     Scope     `json:"scope"`
	MediaType MediaType `json:"mediaType"`
	Sort      Sort      `json:"sort"`

	// TargetIndex opens the collection at a rank. Windowable scopes with a
	// target index are loaded lazily around it.
	TargetIndex *int `json:"targetIndex,omitempty"`
	// TargetPath opens the collection at the entry with this path or filename.
	TargetPath string `json:"targetPath,omitempty"`
	// TargetID opens the collection at the entry with this ID.
	TargetID int64 `json:"targetId,omitempty"`

	SelectedIDs []int64   `json:"selectedIds,omitempty"`
	Paths       []string  `json:"paths,omitempty"`
	Folder      string    `json:"folder,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	Place       string    `json:"place,omitempty"`
	From        time.Time `json:"from,omitzero"`
	To          time.Time `json:"to,omitzero"`
}

// Validate reports a malformed filter. Errors wrap ErrInvalidFilter.
func (f Filter) Validate() error {
	if !f.Scope.valid() {
		return fmt.Errorf("%w: unknown scope %d", ErrInvalidFilter, int(f.Scope))
	}
	if f.MediaType < MediaAll || f.MediaType > MediaVideos {
		return fmt.Errorf("%w: unknown media type %d", ErrInvalidFilter, int(f.MediaType))
	}
	switch f.Sort.Field {
	case "", mediatypes.SortByName, mediatypes.SortByDate, mediatypes.SortByTaken, mediatypes.SortBySize:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidFilter, f.Sort.Field)
	}
	switch f.Sort.Order {
	case "", mediatypes.SortAsc, mediatypes.SortDesc:
	default:
		return fmt.Errorf("%w: unknown sort order %q", ErrInvalidFilter, f.Sort.Order)
	}
	if f.TargetIndex != nil && *f.TargetIndex < 0 {
		return fmt.Errorf("%w: negative target index %d", ErrInvalidFilter, *f.TargetIndex)
	}

	switch f.Scope {
	case ScopeTag:
		if f.Tag == "" {
			return fmt.Errorf("%w: tag scope requires a tag", ErrInvalidFilter)
		}
	case ScopeFolder, ScopeHiddenFolder, ScopeDirectory:
		if f.Folder == "" {
			return fmt.Errorf("%w: %s scope requires a folder", ErrInvalidFilter, f.Scope)
		}
	case ScopePlace:
		if f.Place == "" {
			return fmt.Errorf("%w: place scope requires a place", ErrInvalidFilter)
		}
	case ScopeTimeline:
		if f.From.IsZero() && f.To.IsZero() {
			return fmt.Errorf("%w: timeline scope requires a time range", ErrInvalidFilter)
		}
		if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
			return fmt.Errorf("%w: timeline ends before it starts", ErrInvalidFilter)
		}
	case ScopeFile:
		if len(f.Paths) == 0 {
			return fmt.Errorf("%w: file scope requires at least one path", ErrInvalidFilter)
		}
	case ScopeSelectedList:
		if len(f.SelectedIDs) == 0 {
			return fmt.Errorf("%w: selected scope requires at least one id", ErrInvalidFilter)
		}
	}
	return nil
}

// Windowed reports whether the filter is loaded lazily around TargetIndex
// rather than all at once.
func (f Filter) Windowed() bool {
	return f.TargetIndex != nil && f.Scope.windowed()
}

// Strategy names the loading strategy used for the filter.
func (f Filter) Strategy() string {
	if f.Windowed() {
		return "windowed"
	}
	return "eager"
}

// Index returns a pointer to i for use as Filter.TargetIndex.
func Index(i int) *int {
	return &i
}

// Window returns the inclusive range of size w centred on target and
// clamped to [0, total-1]. The width is kept when the window touches an end.
func Window(target, total, w int) (lower, upper int) {
	if total <= 0 {
		return 0, -1
	}
	if w < 1 {
		w = 1
	}
	if w >= total {
		return 0, total - 1
	}
	target = min(max(target, 0), total-1)

	lower = max(target-w/2, 0)
	upper = lower + w - 1
	if upper > total-1 {
		upper = total - 1
		lower = upper - w + 1
	}
	return lower, upper
}
