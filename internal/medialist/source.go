package medialist

import "context"

// ItemSource resolves filters to ordered entries.
type ItemSource interface {
	// Count returns the number of items matching f.
	Count(ctx context.Context, f Filter) (int, error)
	// Query returns the items ranked start..end inclusive, zero-based.
	Query(ctx context.Context, f Filter, start, end int) ([]Entry, error)
	// QueryByPath returns the single item at path.
	QueryByPath(ctx context.Context, f Filter, path string) (Entry, error)
}

// Locator is implemented by sources that can rank an item without loading
// the collection. Reload uses it to centre the new window on its anchor.
type Locator interface {
	IndexOf(ctx context.Context, f Filter, id int64) (int, error)
}

// Deleter removes an item from the underlying store.
type Deleter interface {
	Delete(ctx context.Context, e Entry) error
}

// Dispatcher delivers jobs to the goroutine that owns an engine. Jobs
// posted with the same key coalesce while undelivered.
type Dispatcher interface {
	Post(key string, job func())
}
