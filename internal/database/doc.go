// Package database provides the SQLite media library used as an item source
// for media lists.
//
// It stores:
//   - Media file records (path, folder, kind, capture time, place)
//   - Favorites and tags
//
// The database uses WAL mode for concurrent reads while a background loader
// pages through a collection, and initializes its schema automatically.
// Writes publish insert/update/delete notifications to a changes.Hub so open
// lists can patch themselves or mark themselves stale.
package database
