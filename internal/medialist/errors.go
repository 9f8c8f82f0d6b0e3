package medialist

import "errors"

var (
	// ErrInvalidFilter is returned when a filter descriptor is malformed.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrSourceUnavailable is returned when the item source fails.
	ErrSourceUnavailable = errors.New("item source unavailable")
	// ErrItemNotFound is returned when a target or anchor cannot be resolved.
	ErrItemNotFound = errors.New("item not found")
	// ErrEmptyCollection is returned when a filter matches nothing.
	ErrEmptyCollection = errors.New("empty collection")
	// ErrLoadPartialFailure records a background chunk that could not be
	// loaded. The window stays at the last good bound.
	ErrLoadPartialFailure = errors.New("partial load failure")
	// ErrWindowEdge is returned when inserting at an end of the list that
	// is not loaded.
	ErrWindowEdge = errors.New("list end is not loaded")
	// ErrQueued is returned by Append and Prepend while a background loader
	// is active. The insert is applied when the loader stops; if it cannot
	// be, the failure is reported through Config.OnLoaded and Rejected.
	ErrQueued = errors.New("held back until the background loader stops")
	// ErrClosed is returned by an engine after Close.
	ErrClosed = errors.New("media list closed")
)
