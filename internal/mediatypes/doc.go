// Package mediatypes provides shared type definitions and utilities for media file
// handling across the gallery engine.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles.
//
// # Kinds
//
// Every media entry carries a slide kind:
//
//	mediatypes.KindImage   // Supported image formats (jpg, png, gif, etc.)
//	mediatypes.KindVideo   // Supported video formats (mp4, mkv, mov, etc.)
//	mediatypes.KindUnknown // Unrecognized or unsupported files
//
// Use KindForPath to classify a file by its extension:
//
//	kind := mediatypes.KindForPath("/media/2024/IMG_0001.JPG") // KindImage
//
// # Sorting
//
// SortField and SortOrder are shared by the filter descriptor and the
// SQLite item source so both agree on the rank order of a collection.
package mediatypes
