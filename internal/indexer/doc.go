// Package indexer keeps the library database in step with the media
// directory.
//
// A full index walks the directory, stats files on a small worker pool and
// upserts them in batches of 500. Records for files that were not seen
// during the walk are removed at the end. Each batch publishes its inserts,
// updates and deletes to the change hub once committed, which is how open
// media lists learn that they are stale.
//
// Between full runs the Indexer acts as the watcher's Sink: single file
// changes and removals are applied as they settle.
//
// Hidden files and directories (any path element starting with '.') are
// indexed with their hidden flag set so the hidden-folder scope can list
// them; every other scope excludes them.
package indexer
