// Package medialist builds navigable, index-stable media lists that are
// loaded lazily around a starting position.
//
// An Engine resolves a Filter against an ItemSource using one of two
// strategies. Filters without a usable start index, and the file, directory
// and selected-list scopes, are loaded in full. Filters with a target index
// load a window of Config.WindowSize entries centred on it and return
// immediately; a background Loader then grows the window half a window at
// a time, right edge first, until it covers the collection.
//
// The engine and its callers run on one foreground goroutine (see package
// eventloop). The loader commits chunks under the list's lock and reports
// completion by posting one coalesced job through the Dispatcher. Deletes
// and inserts requested while a loader runs are held back and applied when
// that job runs, or when the loader is cancelled. A held back insert
// returns ErrQueued; if it later fails it is reported in LoadResult.Rejected.
//
// Teardown is a rendezvous: Close and Reload cancel the loader's context and
// wait for its goroutine to exit before touching the list.
package medialist
