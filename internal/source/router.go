package source

import (
	"context"
	"fmt"

	"gallery/internal/medialist"
)

// Router sends each filter to the library, or to the filesystem for the
// Directory and File scopes.
type Router struct {
	library medialist.ItemSource
	files   *Directory
}

var (
	_ medialist.ItemSource = (*Router)(nil)
	_ medialist.Locator    = (*Router)(nil)
	_ medialist.Deleter    = (*Router)(nil)
)

// NewRouter creates a router. With a nil library every scope the
// filesystem can serve goes to files and the rest fail as invalid.
func NewRouter(library medialist.ItemSource, files *Directory) *Router {
	if files == nil {
		files = NewDirectory(nil)
	}
	return &Router{library: library, files: files}
}

func (r *Router) route(f medialist.Filter) (medialist.ItemSource, error) {
	switch f.Scope {
	case medialist.ScopeDirectory, medialist.ScopeFile:
		return r.files, nil
	}
	if r.library != nil {
		return r.library, nil
	}
	if f.Scope == medialist.ScopeFolder || f.Scope == medialist.ScopeHiddenFolder {
		return r.files, nil
	}
	return nil, fmt.Errorf("%w: scope %s needs a library", medialist.ErrInvalidFilter, f.Scope)
}

// Count implements medialist.ItemSource.
func (r *Router) Count(ctx context.Context, f medialist.Filter) (int, error) {
	src, err := r.route(f)
	if err != nil {
		return 0, err
	}
	return src.Count(ctx, f)
}

// Query implements medialist.ItemSource.
func (r *Router) Query(ctx context.Context, f medialist.Filter, start, end int) ([]medialist.Entry, error) {
	src, err := r.route(f)
	if err != nil {
		return nil, err
	}
	return src.Query(ctx, f, start, end)
}

// QueryByPath implements medialist.ItemSource.
func (r *Router) QueryByPath(ctx context.Context, f medialist.Filter, path string) (medialist.Entry, error) {
	src, err := r.route(f)
	if err != nil {
		return medialist.Entry{}, err
	}
	return src.QueryByPath(ctx, f, path)
}

// IndexOf implements medialist.Locator when the routed source does.
func (r *Router) IndexOf(ctx context.Context, f medialist.Filter, id int64) (int, error) {
	src, err := r.route(f)
	if err != nil {
		return 0, err
	}
	loc, ok := src.(medialist.Locator)
	if !ok {
		return 0, fmt.Errorf("%w: %s cannot rank items", medialist.ErrItemNotFound, f.Scope)
	}
	return loc.IndexOf(ctx, f, id)
}

// Delete removes indexed entries through the library so the record goes
// with the file, and anything else straight from disk.
func (r *Router) Delete(ctx context.Context, e medialist.Entry) error {
	if e.ID > 0 {
		if del, ok := r.library.(medialist.Deleter); ok {
			return del.Delete(ctx, e)
		}
	}
	return r.files.Delete(ctx, e)
}
