package medialist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gallery/internal/changes"
	"gallery/internal/logging"
	"gallery/internal/mediatypes"
	"gallery/internal/metrics"
	"gallery/internal/shuffle"
)

// DefaultWindowSize is the number of entries loaded synchronously around a
// target index.
const DefaultWindowSize = 50

// Config tunes an Engine. The zero value is usable.
type Config struct {
	// WindowSize is the synchronous window width. Background chunks are
	// half of it.
	WindowSize int
	// Seed seeds the shuffle order. Zero picks a time based seed.
	Seed uint64
	// Deleter removes items from the underlying store. When nil and the
	// source implements Deleter, the source is used.
	Deleter Deleter
	// OnLoaded runs on the foreground after a background loader finished
	// and any held back mutations were applied. It does not run for
	// cancelled loaders.
	OnLoaded func(LoadResult)
	// Key coalesces the engine's completion jobs. Defaults to a random key.
	Key string
}

// LoadResult describes a background load that ran to its end.
type LoadResult struct {
	State LoaderState
	// Err is the failure that stopped a Failed loader.
	Err error
	// Rejected holds the held back mutations that could not be applied.
	Rejected []error
}

type mutationKind int

const (
	mutationDelete mutationKind = iota
	mutationAppend
	mutationPrepend
)

func (k mutationKind) String() string {
	switch k {
	case mutationAppend:
		return "append"
	case mutationPrepend:
		return "prepend"
	default:
		return "delete"
	}
}

type mutation struct {
	kind       mutationKind
	cursor     Cursor
	underlying bool
	path       string
}

// Engine builds and navigates a media list.
//
// Except for HandleChange and the read-only List accessors, methods must
// be called from the goroutine that runs the engine's Dispatcher jobs.
type Engine struct {
	source     ItemSource
	dispatcher Dispatcher
	cfg        Config
	key        string

	ctx    context.Context
	cancel context.CancelFunc

	list    *List
	shuffle *shuffle.Index

	loader    *Loader
	loaderGen uint64
	pending   []mutation
	rejected  []error

	loaded  bool
	closed  bool
	localID int64

	needsUpdate atomic.Bool

	mu          sync.Mutex
	selfDeleted map[int64]struct{}
	unsubscribe func()
}

// NewEngine creates an engine reading from source and delivering
// background completions through dispatcher.
func NewEngine(source ItemSource, dispatcher Dispatcher, cfg Config) (*Engine, error) {
	if source == nil {
		return nil, errors.New("medialist: nil item source")
	}
	if dispatcher == nil {
		return nil, errors.New("medialist: nil dispatcher")
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Deleter == nil {
		if d, ok := source.(Deleter); ok {
			cfg.Deleter = d
		}
	}
	key := cfg.Key
	if key == "" {
		key = "medialist:" + uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		source:      source,
		dispatcher:  dispatcher,
		cfg:         cfg,
		key:         key,
		ctx:         ctx,
		cancel:      cancel,
		list:        newList(),
		shuffle:     shuffle.New(cfg.Seed),
		selfDeleted: make(map[int64]struct{}),
	}, nil
}

// List returns the engine's list for read access.
func (e *Engine) List() *List {
	return e.list
}

// Load builds the list for f and returns a cursor to the requested entry,
// which is also made current.
//
// Filters with a target index on a windowable scope load a window around
// the target and expand the rest in the background. Other filters load
// everything. When the requested entry cannot be found in an eagerly loaded
// list the list stays loaded, current points at its first entry, and the
// error wraps ErrItemNotFound.
func (e *Engine) Load(ctx context.Context, f Filter) (Cursor, error) {
	if e.closed {
		return Cursor{}, ErrClosed
	}
	started := time.Now()
	c, err := e.load(ctx, f)
	observeLoad(f.Strategy(), started, err)
	return c, err
}

func (e *Engine) load(ctx context.Context, f Filter) (Cursor, error) {
	if err := f.Validate(); err != nil {
		return Cursor{}, err
	}
	e.stopLoader()
	e.needsUpdate.Store(false)
	e.loaded = true

	total, err := e.source.Count(ctx, f)
	if err != nil {
		e.resetList(f, 0, 0, nil)
		return Cursor{}, sourceError("count", err)
	}
	if total == 0 {
		e.resetList(f, 0, 0, nil)
		return Cursor{}, fmt.Errorf("%w: %s", ErrEmptyCollection, f.Scope)
	}

	if !f.Windowed() {
		return e.loadEager(ctx, f, total, target(f), 0)
	}

	index := *f.TargetIndex
	if index >= total {
		e.resetList(f, total, 0, nil)
		return Cursor{}, fmt.Errorf("%w: target index %d of %d", ErrItemNotFound, index, total)
	}
	return e.loadWindow(ctx, f, total, index, nil)
}

// target locates the entry an eager filter asks for.
func target(f Filter) func(*List) (Cursor, bool) {
	switch {
	case f.TargetID != 0:
		return func(l *List) (Cursor, bool) { return l.FindByID(f.TargetID) }
	case f.TargetPath != "":
		return func(l *List) (Cursor, bool) { return l.FindByFilename(f.TargetPath) }
	case f.TargetIndex != nil:
		return func(l *List) (Cursor, bool) { return l.FindByIndex(*f.TargetIndex) }
	default:
		return func(l *List) (Cursor, bool) { return l.FindByIndex(0) }
	}
}

func (e *Engine) loadEager(ctx context.Context, f Filter, total int, locate func(*List) (Cursor, bool), fallback int) (Cursor, error) {
	var entries []Entry
	if f.Scope == ScopeFile && len(f.Paths) == 1 {
		entry, err := e.source.QueryByPath(ctx, f, f.Paths[0])
		if err != nil {
			e.resetList(f, 0, 0, nil)
			return Cursor{}, sourceError("query by path", err)
		}
		entries = []Entry{entry}
	} else {
		var err error
		entries, err = e.source.Query(ctx, f, 0, total-1)
		if err != nil {
			e.resetList(f, 0, 0, nil)
			return Cursor{}, sourceError("query", err)
		}
	}

	// The eager block is the whole collection, whatever Count said.
	e.resetList(f, len(entries), 0, entries)
	if len(entries) == 0 {
		return Cursor{}, fmt.Errorf("%w: %s", ErrEmptyCollection, f.Scope)
	}

	if c, ok := locate(e.list); ok {
		e.list.moveTo(c)
		return c, nil
	}
	c, _ := e.list.FindByIndex(min(max(fallback, 0), len(entries)-1))
	e.list.moveTo(c)
	return c, fmt.Errorf("%w: requested entry is not in the %s collection", ErrItemNotFound, f.Scope)
}

// loadWindow loads the window around center and starts background
// expansion when it does not cover the collection. When anchor is set and
// finds nothing, current is left at center and ErrItemNotFound returned.
func (e *Engine) loadWindow(ctx context.Context, f Filter, total, center int, anchor func(*List) (Cursor, bool)) (Cursor, error) {
	lower, upper := Window(center, total, e.cfg.WindowSize)
	entries, err := e.source.Query(ctx, f, lower, upper)
	if err != nil {
		e.resetList(f, total, 0, nil)
		return Cursor{}, sourceError("query", err)
	}
	if len(entries) != upper-lower+1 {
		e.resetList(f, total, 0, nil)
		return Cursor{}, fmt.Errorf("%w: window [%d,%d] returned %d entries", ErrSourceUnavailable, lower, upper, len(entries))
	}

	e.resetList(f, total, lower, entries)

	c, _ := e.list.FindByIndex(center)
	var notFound error
	if anchor != nil {
		if found, ok := anchor(e.list); ok {
			c = found
		} else {
			notFound = fmt.Errorf("%w: anchor is not within [%d,%d]", ErrItemNotFound, lower, upper)
		}
	}
	e.list.moveTo(c)

	if !e.list.FullyLoaded() {
		e.spawnLoader()
	}
	return c, notFound
}

// Reload drops the loaded block and rebuilds it around the entry with
// anchorID. When the anchor is gone the list is rebuilt around the anchor's
// old position, current points there, and the error wraps ErrItemNotFound.
func (e *Engine) Reload(ctx context.Context, anchorID int64) (Cursor, error) {
	if e.closed {
		return Cursor{}, ErrClosed
	}
	started := time.Now()
	c, err := e.reload(ctx, anchorID)
	observeLoad("reload", started, err)
	return c, err
}

func (e *Engine) reload(ctx context.Context, anchorID int64) (Cursor, error) {
	if !e.loaded {
		return Cursor{}, fmt.Errorf("%w: nothing has been loaded", ErrInvalidFilter)
	}
	e.stopLoader()

	hint := 0
	if c, ok := e.list.FindByID(anchorID); ok {
		entry, _ := e.list.Entry(c)
		hint = entry.Index
	} else if entry, ok := e.list.Entry(e.list.Current()); ok {
		hint = entry.Index
	}

	f := e.list.Filter()
	e.needsUpdate.Store(false)

	total, err := e.source.Count(ctx, f)
	if err != nil {
		return Cursor{}, sourceError("count", err)
	}
	if total == 0 {
		e.resetList(f, 0, 0, nil)
		return Cursor{}, fmt.Errorf("%w: %s", ErrEmptyCollection, f.Scope)
	}
	hint = min(hint, total-1)

	byID := func(l *List) (Cursor, bool) { return l.FindByID(anchorID) }
	if !f.Windowed() {
		return e.loadEager(ctx, f, total, byID, hint)
	}

	center := hint
	if loc, ok := e.source.(Locator); ok {
		index, err := loc.IndexOf(ctx, f, anchorID)
		switch {
		case err == nil && index >= 0 && index < total:
			center = index
		case err == nil || errors.Is(err, ErrItemNotFound):
		default:
			return Cursor{}, sourceError("index of", err)
		}
	}
	return e.loadWindow(ctx, f, total, center, byID)
}

// resetList replaces the loaded block and reshuffles over the new total.
func (e *Engine) resetList(f Filter, total, lower int, entries []Entry) {
	e.list.reset(f, total, lower, entries)
	e.shuffle.Rebuild(total)
}

func (e *Engine) spawnLoader() {
	e.loaderGen++
	gen := e.loaderGen
	e.loader = newLoader(e.list, e.source, e.list.Filter(), e.cfg.WindowSize, func() {
		e.dispatcher.Post(e.key, func() { e.loaderFinished(gen) })
	})
	e.loader.start(e.ctx)
}

// loaderFinished runs on the foreground once a loader has completed or
// failed. It is the point where held back mutations are applied.
func (e *Engine) loaderFinished(gen uint64) {
	if e.closed || e.loader == nil || gen != e.loaderGen {
		return
	}
	ldr := e.loader
	<-ldr.Done()
	e.loader = nil

	rejected := e.applyPending()
	if e.cfg.OnLoaded != nil {
		e.cfg.OnLoaded(LoadResult{State: ldr.State(), Err: ldr.Err(), Rejected: rejected})
	}
}

// stopLoader cancels the active loader, waits for it to exit and applies
// held back mutations.
func (e *Engine) stopLoader() {
	if e.loader == nil {
		return
	}
	e.loader.stop()
	e.loader = nil
	e.loaderGen++
	e.applyPending()
}

// Loader returns the active background loader, or nil.
func (e *Engine) Loader() *Loader {
	return e.loader
}

// Rejected returns the held back mutations that failed when they were last
// applied.
func (e *Engine) Rejected() []error {
	return e.rejected
}

// Pending returns the number of mutations held back for the active loader.
func (e *Engine) Pending() int {
	return len(e.pending)
}

// applyPending applies held back mutations in order and returns the ones
// that failed.
func (e *Engine) applyPending() []error {
	if len(e.pending) == 0 {
		return nil
	}
	queued := e.pending
	e.pending = nil
	e.rejected = nil
	logging.Debug("Applying %d held back list mutations", len(queued))

	for _, m := range queued {
		var err error
		switch m.kind {
		case mutationDelete:
			err = e.applyDelete(e.ctx, m.cursor, m.underlying)
		case mutationAppend:
			_, err = e.applyInsert(e.ctx, m.path, false)
		case mutationPrepend:
			_, err = e.applyInsert(e.ctx, m.path, true)
		}
		if err == nil {
			continue
		}
		if m.path != "" {
			err = fmt.Errorf("held back %s of %s: %w", m.kind, m.path, err)
		} else {
			err = fmt.Errorf("held back %s: %w", m.kind, err)
		}
		metrics.ListMutationsTotal.WithLabelValues(m.kind.String(), "rejected").Inc()
		logging.Warn("%v", err)
		e.rejected = append(e.rejected, err)
	}
	return e.rejected
}

func (e *Engine) hold(m mutation) {
	e.pending = append(e.pending, m)
	metrics.ListMutationsTotal.WithLabelValues(m.kind.String(), "queued").Inc()
}

// Delete removes the entry at c, optionally deleting the underlying item
// too. A failing underlying delete is logged and the entry is removed from
// the list regardless. While a background loader is active the request is
// held back and applied when the loader stops.
func (e *Engine) Delete(ctx context.Context, c Cursor, alsoDeleteUnderlying bool) error {
	if e.closed {
		return ErrClosed
	}
	if !e.list.Valid(c) {
		return ErrItemNotFound
	}
	if e.loader != nil {
		e.hold(mutation{kind: mutationDelete, cursor: c, underlying: alsoDeleteUnderlying})
		return nil
	}
	if err := e.applyDelete(ctx, c, alsoDeleteUnderlying); err != nil {
		return err
	}
	metrics.ListMutationsTotal.WithLabelValues("delete", "direct").Inc()
	return nil
}

func (e *Engine) applyDelete(ctx context.Context, c Cursor, underlying bool) error {
	entry, ok := e.list.Entry(c)
	if !ok {
		return ErrItemNotFound
	}
	if underlying {
		e.deleteUnderlying(ctx, entry)
	}
	if _, err := e.list.remove(c); err != nil {
		return err
	}
	e.shuffle.Remove(entry.Index)
	logging.Debug("Removed %s at index %d", entry.Path, entry.Index)
	return nil
}

func (e *Engine) deleteUnderlying(ctx context.Context, entry Entry) {
	if e.cfg.Deleter == nil {
		logging.Warn("No deleter configured, %s stays on disk", entry.Path)
		return
	}

	// Unindexed and local entries produce no notification.
	tracked := entry.ID > 0
	if tracked {
		e.mu.Lock()
		e.selfDeleted[entry.ID] = struct{}{}
		e.mu.Unlock()
	}

	if err := e.cfg.Deleter.Delete(ctx, entry); err != nil {
		metrics.ListUnderlyingDeleteErrors.Inc()
		logging.Error("Failed to delete %s: %v", entry.Path, err)
		if tracked {
			e.mu.Lock()
			delete(e.selfDeleted, entry.ID)
			e.mu.Unlock()
		}
	}
}

// Append adds the item at path after the last entry. The last entry of the
// collection must be loaded. While a background loader is active the
// request is held back and ErrQueued is returned with a zero cursor.
func (e *Engine) Append(ctx context.Context, path string) (Cursor, error) {
	return e.insert(ctx, path, false)
}

// Prepend adds the item at path before the first entry. The first entry of
// the collection must be loaded.
func (e *Engine) Prepend(ctx context.Context, path string) (Cursor, error) {
	return e.insert(ctx, path, true)
}

func (e *Engine) insert(ctx context.Context, path string, front bool) (Cursor, error) {
	if e.closed {
		return Cursor{}, ErrClosed
	}
	kind := mutationAppend
	if front {
		kind = mutationPrepend
	}
	if e.loader != nil {
		e.hold(mutation{kind: kind, path: path})
		return Cursor{}, ErrQueued
	}
	c, err := e.applyInsert(ctx, path, front)
	if err != nil {
		return Cursor{}, err
	}
	metrics.ListMutationsTotal.WithLabelValues(kind.String(), "direct").Inc()
	return c, nil
}

func (e *Engine) applyInsert(ctx context.Context, path string, front bool) (Cursor, error) {
	if !e.list.atEdge(front) {
		return Cursor{}, ErrWindowEdge
	}

	entry, err := e.source.QueryByPath(ctx, e.list.Filter(), path)
	if err != nil {
		logging.Debug("Source has no entry for %s, adding it locally: %v", path, err)
		e.localID--
		entry = Entry{ID: e.localID, Path: path, Kind: mediatypes.KindForPath(path)}
	}

	var c Cursor
	if front {
		c, err = e.list.insertFront(entry)
	} else {
		c, err = e.list.insertBack(entry)
	}
	if err != nil {
		return Cursor{}, err
	}
	e.shuffle.Rebuild(e.list.Total())
	return c, nil
}

// Current returns the current cursor.
func (e *Engine) Current() Cursor { return e.list.Current() }

// Previous returns the cursor that was current before the last move.
func (e *Engine) Previous() Cursor { return e.list.Previous() }

// Entry returns the entry at c.
func (e *Engine) Entry(c Cursor) (Entry, bool) { return e.list.Entry(c) }

// Next returns the loaded entry after c.
func (e *Engine) Next(c Cursor) (Cursor, bool) { return e.list.Next(c) }

// Prev returns the loaded entry before c.
func (e *Engine) Prev(c Cursor) (Cursor, bool) { return e.list.Prev(c) }

// FindByIndex returns the loaded entry ranked index.
func (e *Engine) FindByIndex(index int) (Cursor, bool) { return e.list.FindByIndex(index) }

// FindByFilename returns the loaded entry with the given path or filename.
func (e *Engine) FindByFilename(name string) (Cursor, bool) { return e.list.FindByFilename(name) }

// FindByID returns the loaded entry with the given ID.
func (e *Engine) FindByID(id int64) (Cursor, bool) { return e.list.FindByID(id) }

// MoveNext advances current to the next loaded entry.
func (e *Engine) MoveNext() (Cursor, bool) {
	c, ok := e.list.Next(e.list.Current())
	if ok {
		e.list.moveTo(c)
	}
	return c, ok
}

// MovePrev moves current to the previous loaded entry.
func (e *Engine) MovePrev() (Cursor, bool) {
	c, ok := e.list.Prev(e.list.Current())
	if ok {
		e.list.moveTo(c)
	}
	return c, ok
}

// MoveTo makes c current.
func (e *Engine) MoveTo(c Cursor) error {
	if !e.list.moveTo(c) {
		return ErrItemNotFound
	}
	return nil
}

// NextShuffled makes the next loaded entry in shuffle order current.
// Indices outside the loaded window are skipped.
func (e *Engine) NextShuffled() (Cursor, bool) {
	// The rest of this cycle plus one full cycle reaches every index.
	for range e.shuffle.Remaining() + e.shuffle.Len() {
		index, ok := e.shuffle.Next()
		if !ok {
			break
		}
		if c, ok := e.list.FindByIndex(index); ok {
			e.list.moveTo(c)
			return c, true
		}
	}
	return Cursor{}, false
}

// SetState records the viewer's lifecycle state for the entry at c.
func (e *Engine) SetState(c Cursor, s State) error {
	if !e.list.setState(c, s) {
		return ErrItemNotFound
	}
	return nil
}

// NeedsUpdate reports whether a change notification has made the list
// stale. The foreground decides when to Reload.
func (e *Engine) NeedsUpdate() bool {
	return e.needsUpdate.Load()
}

// MarkNeedsUpdate sets or clears the stale flag.
func (e *Engine) MarkNeedsUpdate(v bool) {
	e.needsUpdate.Store(v)
}

// Subscribe feeds the hub's changes to HandleChange until Close.
func (e *Engine) Subscribe(hub *changes.Hub) {
	unsubscribe := hub.Subscribe(e.HandleChange)
	e.mu.Lock()
	previous := e.unsubscribe
	e.unsubscribe = unsubscribe
	e.mu.Unlock()
	if previous != nil {
		previous()
	}
}

// HandleChange applies a change notification. It is safe to call from any
// goroutine. Updates are patched in on the foreground; inserts and deletes
// only mark the list stale.
func (e *Engine) HandleChange(c changes.Change) {
	metrics.ListChangeEventsTotal.WithLabelValues(c.Kind.String()).Inc()

	switch c.Kind {
	case changes.Update:
		e.dispatcher.Post("", func() { e.applyUpdate(c) })
	case changes.Delete:
		e.mu.Lock()
		_, own := e.selfDeleted[c.ID]
		delete(e.selfDeleted, c.ID)
		e.mu.Unlock()
		if own {
			return
		}
		e.needsUpdate.Store(true)
	case changes.Insert:
		e.needsUpdate.Store(true)
	}
}

func (e *Engine) applyUpdate(c changes.Change) {
	if e.closed {
		return
	}

	var match func(Entry) bool
	switch {
	case c.ID != 0:
		match = func(en Entry) bool { return en.ID == c.ID }
	case c.OldPath != "":
		match = func(en Entry) bool { return en.Path == c.OldPath }
	default:
		// Content changed in place; the viewer reloads it.
		n := e.list.patch(func(en Entry) bool { return en.Path == c.Path }, func(en *Entry) {
			en.State = StateReady
		})
		if n > 0 {
			logging.Debug("Marked %s for redisplay", c.Path)
		}
		return
	}

	n := e.list.patch(match, func(en *Entry) {
		if c.Path != "" {
			en.Path = c.Path
			en.Kind = mediatypes.KindForPath(c.Path)
		}
	})
	if n > 0 {
		logging.Debug("Patched %d entries for change to %s", n, c.Path)
	}
}

// Close stops any background loader, waiting until it has exited, and
// releases the list. Held back mutations are discarded.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	if e.loader != nil {
		e.loader.stop()
		e.loader = nil
		e.loaderGen++
	}
	if len(e.pending) > 0 {
		logging.Debug("Discarding %d held back list mutations", len(e.pending))
		e.pending = nil
	}
	e.cancel()

	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	e.resetList(Filter{}, 0, 0, nil)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed
}

// sourceError keeps filter and lookup errors from the source visible to
// callers and wraps everything else as ErrSourceUnavailable.
func sourceError(op string, err error) error {
	if errors.Is(err, ErrInvalidFilter) || errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrEmptyCollection) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, op, err)
}

func observeLoad(strategy string, started time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidFilter):
		status = "invalid_filter"
	case errors.Is(err, ErrEmptyCollection):
		status = "empty"
	case errors.Is(err, ErrItemNotFound):
		status = "not_found"
	default:
		status = "source_error"
	}
	metrics.ListLoadsTotal.WithLabelValues(strategy, status).Inc()
	metrics.ListLoadDuration.WithLabelValues(strategy).Observe(time.Since(started).Seconds())
	if err != nil {
		logging.Debug("%s load finished with %s: %v", strategy, status, err)
	}
}
