// Package handlers provides HTTP request handlers for the gallery API.
//
// It includes handlers for:
//   - Viewer sessions: opening a collection, navigating, shuffling,
//     reloading and editing the loaded list
//   - Library edits: favorites, tags and renames
//   - Health checks, version and library stats
package handlers
