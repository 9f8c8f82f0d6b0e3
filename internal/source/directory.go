package source

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gallery/internal/filesystem"
	"gallery/internal/logging"
	"gallery/internal/medialist"
	"gallery/internal/mediatypes"
)

// IDResolver maps paths to library IDs. Entries of unindexed files keep a
// zero ID.
type IDResolver interface {
	FileIDs(ctx context.Context, paths []string) (map[string]int64, error)
}

// Directory lists media straight from disk.
type Directory struct {
	retry filesystem.RetryConfig
	ids   IDResolver
}

var (
	_ medialist.ItemSource = (*Directory)(nil)
	_ medialist.Locator    = (*Directory)(nil)
	_ medialist.Deleter    = (*Directory)(nil)
)

// NewDirectory creates a filesystem source. ids may be nil.
func NewDirectory(ids IDResolver) *Directory {
	return &Directory{retry: filesystem.DefaultRetryConfig(), ids: ids}
}

type fileInfo struct {
	entry   medialist.Entry
	modTime time.Time
	size    int64
}

// Count returns the number of media files matching f.
func (d *Directory) Count(ctx context.Context, f medialist.Filter) (int, error) {
	files, err := d.list(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

// Query returns the files ranked start..end inclusive.
func (d *Directory) Query(ctx context.Context, f medialist.Filter, start, end int) ([]medialist.Entry, error) {
	files, err := d.list(ctx, f)
	if err != nil {
		return nil, err
	}
	if start < 0 || start >= len(files) || end < start {
		return nil, nil
	}
	end = min(end, len(files)-1)

	entries := make([]medialist.Entry, 0, end-start+1)
	for i := start; i <= end; i++ {
		e := files[i].entry
		e.Index = i
		entries = append(entries, e)
	}
	return entries, nil
}

// QueryByPath stats a single media file.
func (d *Directory) QueryByPath(ctx context.Context, _ medialist.Filter, path string) (medialist.Entry, error) {
	fi, ok, err := d.stat(path)
	if err != nil {
		return medialist.Entry{}, err
	}
	if !ok {
		return medialist.Entry{}, fmt.Errorf("%w: %s", medialist.ErrItemNotFound, path)
	}
	files := []fileInfo{fi}
	d.resolveIDs(ctx, files)
	return files[0].entry, nil
}

// IndexOf returns the rank of the file with the given library ID.
func (d *Directory) IndexOf(ctx context.Context, f medialist.Filter, id int64) (int, error) {
	files, err := d.list(ctx, f)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		for i, fi := range files {
			if fi.entry.ID == id {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: id %d under %s", medialist.ErrItemNotFound, id, f.Scope)
}

// Delete removes the file from disk. A file that is already gone is not
// an error.
func (d *Directory) Delete(_ context.Context, e medialist.Entry) error {
	if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", e.Path, err)
	}
	logging.Info("Deleted media file %s", e.Path)
	return nil
}

func (d *Directory) list(ctx context.Context, f medialist.Filter) ([]fileInfo, error) {
	var files []fileInfo
	var err error

	switch f.Scope {
	case medialist.ScopeDirectory, medialist.ScopeFolder, medialist.ScopeHiddenFolder:
		files, err = d.readDir(f)
	case medialist.ScopeFile:
		files, err = d.statPaths(ctx, f)
	default:
		return nil, fmt.Errorf("%w: scope %s is not served from disk", medialist.ErrInvalidFilter, f.Scope)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.resolveIDs(ctx, files)
	return files, nil
}

func (d *Directory) readDir(f medialist.Filter) ([]fileInfo, error) {
	if f.Folder == "" {
		return nil, fmt.Errorf("%w: %s scope needs a folder", medialist.ErrInvalidFilter, f.Scope)
	}
	dir := filepath.Clean(f.Folder)

	dirEntries, err := filesystem.ReadDirWithRetry(dir, d.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	showHidden := f.Scope == medialist.ScopeHiddenFolder
	wantKind, filterKind := f.MediaType.Kind()

	files := make([]fileInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || (!showHidden && strings.HasPrefix(name, ".")) {
			continue
		}
		kind := mediatypes.KindForPath(name)
		if kind == mediatypes.KindUnknown || (filterKind && kind != wantKind) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed since the listing.
			logging.Debug("Skipping %s: %v", name, err)
			continue
		}
		path := filepath.Join(dir, name)
		files = append(files, fileInfo{
			entry:   medialist.Entry{Path: path, Kind: kind},
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}

	sortFiles(files, f.Sort)
	return files, nil
}

// statPaths keeps the given order and drops paths that are missing or
// are not media.
func (d *Directory) statPaths(ctx context.Context, f medialist.Filter) ([]fileInfo, error) {
	wantKind, filterKind := f.MediaType.Kind()

	files := make([]fileInfo, 0, len(f.Paths))
	for _, p := range f.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fi, ok, err := d.stat(p)
		if err != nil {
			return nil, err
		}
		if !ok || (filterKind && fi.entry.Kind != wantKind) {
			continue
		}
		files = append(files, fi)
	}
	return files, nil
}

func (d *Directory) stat(path string) (fileInfo, bool, error) {
	kind := mediatypes.KindForPath(path)
	if kind == mediatypes.KindUnknown {
		return fileInfo{}, false, nil
	}
	info, err := filesystem.StatWithRetry(path, d.retry)
	if errors.Is(err, os.ErrNotExist) {
		logging.Debug("Skipping missing file %s", path)
		return fileInfo{}, false, nil
	}
	if err != nil {
		return fileInfo{}, false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fileInfo{}, false, nil
	}
	return fileInfo{
		entry:   medialist.Entry{Path: path, Kind: kind},
		modTime: info.ModTime(),
		size:    info.Size(),
	}, true, nil
}

func (d *Directory) resolveIDs(ctx context.Context, files []fileInfo) {
	if d.ids == nil || len(files) == 0 {
		return
	}
	paths := make([]string, len(files))
	for i, fi := range files {
		paths[i] = fi.entry.Path
	}
	ids, err := d.ids.FileIDs(ctx, paths)
	if err != nil {
		logging.Warn("Failed to resolve library IDs: %v", err)
		return
	}
	for i := range files {
		files[i].entry.ID = ids[files[i].entry.Path]
	}
}

// sortFiles orders files like the library does. Files on disk carry no
// capture time, so taken order falls back to the modification time.
func sortFiles(files []fileInfo, s medialist.Sort) {
	var by func(a, b fileInfo) int
	switch s.Field {
	case mediatypes.SortByDate, mediatypes.SortByTaken:
		by = func(a, b fileInfo) int { return a.modTime.Compare(b.modTime) }
	case mediatypes.SortBySize:
		by = func(a, b fileInfo) int { return cmp.Compare(a.size, b.size) }
	default:
		by = func(a, b fileInfo) int {
			return strings.Compare(strings.ToLower(a.entry.Filename()), strings.ToLower(b.entry.Filename()))
		}
	}

	slices.SortStableFunc(files, func(a, b fileInfo) int {
		c := by(a, b)
		if c == 0 {
			c = strings.Compare(a.entry.Path, b.entry.Path)
		}
		if s.Order == mediatypes.SortDesc {
			return -c
		}
		return c
	})
}
