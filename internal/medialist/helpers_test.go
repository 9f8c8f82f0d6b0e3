package medialist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"gallery/internal/eventloop"
	"gallery/internal/mediatypes"
)

// fakeSource serves a fixed slice of entries. Queries after the first
// allow calls block until release is closed, so tests can hold a loader
// mid-expansion without sleeping. With ignoreCancel a blocked query keeps
// waiting for release after its context is cancelled and reports the
// cancellation on cancelSeen.
type fakeSource struct {
	mu      sync.Mutex
	entries []Entry
	calls   int
	ranges  [][2]int

	allow        int
	release      chan struct{}
	entered      chan struct{}
	ignoreCancel bool
	cancelSeen   chan struct{}

	failFrom int
	countErr error
}

func makeEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			ID:   int64(i + 1),
			Path: fmt.Sprintf("/media/%03d.jpg", i),
			Kind: mediatypes.KindImage,
		}
	}
	return entries
}

func newFakeSource(n int) *fakeSource {
	return &fakeSource{
		entries:    makeEntries(n),
		allow:      -1,
		release:    make(chan struct{}),
		entered:    make(chan struct{}, 1),
		cancelSeen: make(chan struct{}, 1),
	}
}

// gated makes every query after the first allow calls block.
func (s *fakeSource) gated(allow int) *fakeSource {
	s.allow = allow
	return s
}

func (s *fakeSource) scoped(f Filter) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Scope != ScopeSelectedList {
		return slices.Clone(s.entries)
	}
	var out []Entry
	for _, id := range f.SelectedIDs {
		for _, e := range s.entries {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out
}

func (s *fakeSource) Count(_ context.Context, f Filter) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return len(s.scoped(f)), nil
}

func (s *fakeSource) Query(ctx context.Context, f Filter, start, end int) ([]Entry, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.ranges = append(s.ranges, [2]int{start, end})
	s.mu.Unlock()

	if s.allow >= 0 && n > s.allow {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		if s.ignoreCancel {
			select {
			case <-s.release:
			case <-ctx.Done():
				select {
				case s.cancelSeen <- struct{}{}:
				default:
				}
				<-s.release
			}
		} else {
			select {
			case <-s.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if s.failFrom > 0 && start >= s.failFrom {
		return nil, errors.New("disk unplugged")
	}
	all := s.scoped(f)
	if start < 0 || start >= len(all) {
		return nil, nil
	}
	return all[start:min(end+1, len(all))], nil
}

func (s *fakeSource) QueryByPath(_ context.Context, _ Filter, path string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Path == path {
			return e, nil
		}
	}
	return Entry{}, ErrItemNotFound
}

func (s *fakeSource) IndexOf(_ context.Context, f Filter, id int64) (int, error) {
	for i, e := range s.scoped(f) {
		if e.ID == id {
			return i, nil
		}
	}
	return 0, ErrItemNotFound
}

func (s *fakeSource) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool { return e.ID == id })
}

func (s *fakeSource) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// plainSource hides the Locator capability of a fakeSource.
type plainSource struct{ src *fakeSource }

func (p plainSource) Count(ctx context.Context, f Filter) (int, error) {
	return p.src.Count(ctx, f)
}

func (p plainSource) Query(ctx context.Context, f Filter, start, end int) ([]Entry, error) {
	return p.src.Query(ctx, f, start, end)
}

func (p plainSource) QueryByPath(ctx context.Context, f Filter, path string) (Entry, error) {
	return p.src.QueryByPath(ctx, f, path)
}

type failingDeleter struct {
	calls []int64
}

func (d *failingDeleter) Delete(_ context.Context, e Entry) error {
	d.calls = append(d.calls, e.ID)
	return errors.New("permission denied")
}

func newTestEngine(t *testing.T, src ItemSource, cfg Config) (*Engine, *eventloop.Loop) {
	t.Helper()
	loop := eventloop.New()
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	e, err := NewEngine(src, loop, cfg)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	t.Cleanup(e.Close)
	return e, loop
}

// finishLoader waits for the active loader to stop and runs its completion
// job on the test goroutine.
func finishLoader(t *testing.T, e *Engine, loop *eventloop.Loop) {
	t.Helper()
	ldr := e.Loader()
	if ldr == nil {
		t.Fatal("no active loader")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ldr.Wait(ctx); err != nil {
		t.Fatalf("loader did not stop: %v", err)
	}
	loop.Drain()
}

func waitEntered(t *testing.T, s *fakeSource) {
	t.Helper()
	select {
	case <-s.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("loader never reached the gated query")
	}
}

func mustBounds(t *testing.T, l *List, lower, upper int) {
	t.Helper()
	gotLower, gotUpper, ok := l.Bounds()
	if !ok || gotLower != lower || gotUpper != upper {
		t.Fatalf("Bounds() = [%d,%d] (ok=%v), want [%d,%d]", gotLower, gotUpper, ok, lower, upper)
	}
}

func mustInvariants(t *testing.T, l *List) {
	t.Helper()
	if err := l.checkInvariants(); err != nil {
		t.Fatalf("list invariants broken: %v", err)
	}
}

// mustEngineInvariants also checks that the shuffle order spans the whole
// collection.
func mustEngineInvariants(t *testing.T, e *Engine) {
	t.Helper()
	mustInvariants(t, e.List())
	if got, want := e.shuffle.Len(), e.List().Total(); got != want {
		t.Fatalf("shuffle covers %d indices, want total %d", got, want)
	}
}

func entryAt(t *testing.T, e *Engine, c Cursor) Entry {
	t.Helper()
	entry, ok := e.Entry(c)
	if !ok {
		t.Fatalf("cursor %+v refers to no entry", c)
	}
	return entry
}
