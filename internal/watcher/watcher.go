package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gallery/internal/logging"
	"gallery/internal/mediatypes"
	"gallery/internal/metrics"
)

// DefaultDebounce is how long a path must be quiet before it is reported.
const DefaultDebounce = 250 * time.Millisecond

// Sink receives settled filesystem changes.
type Sink interface {
	// Changed is called for a media file that was created or modified.
	Changed(ctx context.Context, path string) error
	// Removed is called for a path that no longer exists. It may have been
	// a file or a whole directory.
	Removed(ctx context.Context, path string) error
}

// Watcher monitors a directory tree.
type Watcher struct {
	root     string
	sink     Sink
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	watched map[string]bool
}

// New creates a watcher on every non-hidden directory under root.
func New(root string, sink Sink) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}

	w := &Watcher{
		root:     filepath.Clean(root),
		sink:     sink,
		fsw:      fsw,
		debounce: DefaultDebounce,
		pending:  make(map[string]time.Time),
		watched:  make(map[string]bool),
	}

	if err := w.addTree(w.root, nil); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logging.Error("failed to close file watcher: %v", closeErr)
		}
		return nil, err
	}
	logging.Debug("Watcher started, watching %d directories", w.Watched())
	return w, nil
}

// SetDebounce sets the quiet period before a path is reported.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// addTree watches dir and its subdirectories. Media files found on the way
// are passed to found, which may be nil.
func (w *Watcher) addTree(dir string, found func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Warn("failed to walk %s for watcher: %v", path, err)
			return nil
		}
		if w.hidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if found != nil && mediatypes.KindForPath(path) != mediatypes.KindUnknown {
				found(path)
			}
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		w.mu.Lock()
		w.watched[path] = true
		metrics.WatchedDirectories.Set(float64(len(w.watched)))
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return mediatypes.IsHidden(rel)
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}
		metrics.WatchedDirectories.Set(0)
	}()

	w.mu.Lock()
	tick := max(w.debounce/2, time.Millisecond)
	w.mu.Unlock()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.hidden(event.Name) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	// Permission changes never alter what the library shows.
	if event.Op == fsnotify.Chmod {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush reports every path that has been quiet for the debounce interval.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.settle(ctx, path)
	}
}

func (w *Watcher) settle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		w.mu.Lock()
		for dir := range w.watched {
			if dir == path || isUnder(dir, path) {
				delete(w.watched, dir)
			}
		}
		metrics.WatchedDirectories.Set(float64(len(w.watched)))
		w.mu.Unlock()
		w.report(ctx, "remove", path, w.sink.Removed)

	case err != nil:
		logging.Warn("failed to stat %s: %v", path, err)
		metrics.WatcherErrors.Inc()

	case info.IsDir():
		w.mu.Lock()
		known := w.watched[path]
		w.mu.Unlock()
		if known {
			return
		}
		// Files copied in before the watch was added produce no events.
		err := w.addTree(path, func(file string) {
			w.report(ctx, "change", file, w.sink.Changed)
		})
		if err != nil {
			logging.Warn("failed to add new directory to watcher %s: %v", path, err)
			metrics.WatcherErrors.Inc()
			return
		}
		logging.Debug("Added new directory to watcher: %s", path)

	case mediatypes.KindForPath(path) != mediatypes.KindUnknown:
		w.report(ctx, "change", path, w.sink.Changed)
	}
}

func (w *Watcher) report(ctx context.Context, what, path string, fn func(context.Context, string) error) {
	if err := fn(ctx, path); err != nil {
		logging.Warn("failed to apply %s of %s: %v", what, path, err)
		metrics.WatcherErrors.Inc()
	}
}

// eventType returns a string representation of the fsnotify operation
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}

func isUnder(path, dir string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
