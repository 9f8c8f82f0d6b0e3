package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

type call struct {
	op   string
	path string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []call
	seen  chan call
	err   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{seen: make(chan call, 64)}
}

func (s *fakeSink) record(op, path string) error {
	c := call{op: op, path: path}
	s.mu.Lock()
	s.calls = append(s.calls, c)
	err := s.err
	s.mu.Unlock()
	select {
	case s.seen <- c:
	default:
	}
	return err
}

func (s *fakeSink) Changed(_ context.Context, path string) error { return s.record("changed", path) }
func (s *fakeSink) Removed(_ context.Context, path string) error { return s.record("removed", path) }

func (s *fakeSink) snapshot() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func newTestWatcher(t *testing.T) (*Watcher, *fakeSink, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "album"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".cache"), 0o755); err != nil {
		t.Fatal(err)
	}
	sink := newFakeSink()
	w, err := New(root, sink)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { w.fsw.Close() })
	return w, sink, root
}

// later is far enough ahead that every pending path has settled.
func later() time.Time { return time.Now().Add(time.Hour) }

func TestNewWatchesVisibleDirectories(t *testing.T) {
	t.Parallel()

	w, _, root := newTestWatcher(t)
	if got := w.Watched(); got != 2 {
		t.Errorf("Watched() = %d, want 2 (root and album)", got)
	}
	if w.watched[filepath.Join(root, ".cache")] {
		t.Error("hidden directory is watched")
	}
}

func TestNewMissingRoot(t *testing.T) {
	t.Parallel()

	if _, err := New(filepath.Join(t.TempDir(), "missing"), newFakeSink()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("New() on a missing root = %v, want not exist", err)
	}
}

func TestSettleReportsChanges(t *testing.T) {
	t.Parallel()

	w, sink, root := newTestWatcher(t)
	ctx := context.Background()

	photo := filepath.Join(root, "album", "a.jpg")
	notes := filepath.Join(root, "album", "notes.txt")
	gone := filepath.Join(root, "album", "gone.jpg")
	for _, p := range []string{photo, notes} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	// A burst of writes to one path is reported once.
	w.handleEvent(fsnotify.Event{Name: photo, Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: photo, Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: photo, Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: notes, Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: gone, Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: photo, Op: fsnotify.Chmod})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, ".cache", "t.jpg"), Op: fsnotify.Create})

	// Nothing settles before the debounce interval.
	w.flush(ctx, time.Now().Add(-time.Second))
	if got := sink.snapshot(); len(got) != 0 {
		t.Fatalf("reported %v before settling", got)
	}

	w.flush(ctx, later())
	got := sink.snapshot()
	slices.SortFunc(got, func(a, b call) int {
		if a.path < b.path {
			return -1
		}
		if a.path > b.path {
			return 1
		}
		return 0
	})
	want := []call{{"changed", photo}, {"removed", gone}}
	if !slices.Equal(got, want) {
		t.Errorf("reported %v, want %v", got, want)
	}
	if len(w.pending) != 0 {
		t.Errorf("%d paths still pending", len(w.pending))
	}
}

func TestSettleNewDirectory(t *testing.T) {
	t.Parallel()

	w, sink, root := newTestWatcher(t)
	ctx := context.Background()

	dir := filepath.Join(root, "new", "nested")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "b.mp4")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "new"), Op: fsnotify.Create})
	w.flush(ctx, later())

	if got := w.Watched(); got != 4 {
		t.Errorf("Watched() = %d, want 4", got)
	}
	if got := sink.snapshot(); !slices.Equal(got, []call{{"changed", file}}) {
		t.Errorf("reported %v, want the copied-in file", got)
	}

	// Removing the directory drops its watches and reports one removal.
	if err := os.RemoveAll(filepath.Join(root, "new")); err != nil {
		t.Fatal(err)
	}
	w.handleEvent(fsnotify.Event{Name: filepath.Join(root, "new"), Op: fsnotify.Remove})
	w.flush(ctx, later())
	if got := w.Watched(); got != 2 {
		t.Errorf("Watched() after removal = %d, want 2", got)
	}
	calls := sink.snapshot()
	if last := calls[len(calls)-1]; last != (call{"removed", filepath.Join(root, "new")}) {
		t.Errorf("last report = %v", last)
	}
}

func TestSinkErrorsDoNotStopTheWatcher(t *testing.T) {
	t.Parallel()

	w, sink, root := newTestWatcher(t)
	sink.err = errors.New("database locked")

	for _, name := range []string{"a.jpg", "b.jpg"} {
		p := filepath.Join(root, name)
		if err := os.WriteFile(p, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		w.handleEvent(fsnotify.Event{Name: p, Op: fsnotify.Create})
	}
	w.flush(context.Background(), later())
	if got := len(sink.snapshot()); got != 2 {
		t.Errorf("sink called %d times, want 2", got)
	}
}

func TestEventType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		op   fsnotify.Op
		want string
	}{
		{fsnotify.Create, "create"},
		{fsnotify.Write, "write"},
		{fsnotify.Remove, "remove"},
		{fsnotify.Rename, "rename"},
		{fsnotify.Chmod, "chmod"},
		{fsnotify.Create | fsnotify.Write, "create"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		if got := eventType(tt.op); got != tt.want {
			t.Errorf("eventType(%v) = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestRunDeliversRealEvents(t *testing.T) {
	t.Parallel()

	w, sink, root := newTestWatcher(t)
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(root, "album", "live.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(10 * time.Second)
	for found := false; !found; {
		select {
		case c := <-sink.seen:
			found = c == call{"changed", path}
		case <-deadline:
			t.Fatal("no change reported for the new file")
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
