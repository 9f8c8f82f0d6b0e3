// Package watcher turns fsnotify events under the media directory into
// library updates.
//
// Events are coalesced per path for a short debounce interval so a file
// being copied produces one change rather than one per write. New
// directories are watched as they appear. Hidden files and directories
// are ignored.
//
// The watcher does not publish change notifications itself. It hands each
// settled path to a Sink (the indexer), which updates the library; the
// library publishes to the change hub once the write is durable.
package watcher
