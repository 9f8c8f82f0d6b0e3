package medialist

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gallery/internal/logging"
	"gallery/internal/metrics"
)

// LoaderState is the state of a background loader.
type LoaderState int32

const (
	LoaderIdle LoaderState = iota
	LoaderExpanding
	LoaderCompleted
	LoaderCancelled
	// LoaderFailed means a chunk could not be loaded and expansion stopped
	// at the last good bound.
	LoaderFailed
)

var loaderStateNames = [...]string{"idle", "expanding", "completed", "cancelled", "failed"}

func (s LoaderState) String() string {
	if s >= 0 && int(s) < len(loaderStateNames) {
		return loaderStateNames[s]
	}
	return fmt.Sprintf("loader(%d)", int(s))
}

// Terminal reports whether the loader has stopped.
func (s LoaderState) Terminal() bool {
	return s >= LoaderCompleted
}

// Loader expands a list's loaded window toward the full collection on its
// own goroutine. It owns the window's growth for its lifetime.
type Loader struct {
	list   *List
	source ItemSource
	filter Filter
	step   int

	// onFinish runs on the loader goroutine for Completed and Failed, before
	// done is closed.
	onFinish func()

	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
	err    error
}

func newLoader(list *List, source ItemSource, filter Filter, windowSize int, onFinish func()) *Loader {
	return &Loader{
		list:     list,
		source:   source,
		filter:   filter,
		step:     max(1, windowSize/2),
		onFinish: onFinish,
		done:     make(chan struct{}),
	}
}

// start launches the expansion goroutine. The loader is cancelled with
// parent as well as with stop.
func (l *Loader) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.state.Store(int32(LoaderExpanding))
	metrics.LoaderActive.Inc()
	go l.run(ctx)
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.done)
	defer metrics.LoaderActive.Dec()

	start := time.Now()
	state, err := l.expand(ctx)
	l.err = err
	l.state.Store(int32(state))
	metrics.LoaderRunsTotal.WithLabelValues(state.String()).Inc()

	lower, upper, _ := l.list.Bounds()
	switch state {
	case LoaderCompleted:
		logging.Debug("Loader completed [%d,%d] in %v", lower, upper, time.Since(start))
	case LoaderFailed:
		logging.Warn("Loader stopped at [%d,%d]: %v", lower, upper, err)
	case LoaderCancelled:
		logging.Debug("Loader cancelled at [%d,%d]", lower, upper)
		return
	}

	if l.onFinish != nil {
		l.onFinish()
	}
}

// expand grows the window by alternating half-steps, right edge first.
func (l *Loader) expand(ctx context.Context) (LoaderState, error) {
	for {
		lower, upper, total := l.window()
		if lower == 0 && upper == total-1 {
			return LoaderCompleted, nil
		}

		if upper < total-1 {
			if ctx.Err() != nil {
				return LoaderCancelled, nil
			}
			if err := l.loadAfter(ctx, upper, total); err != nil {
				if ctx.Err() != nil {
					return LoaderCancelled, nil
				}
				return LoaderFailed, err
			}
		}

		if lower > 0 {
			if ctx.Err() != nil {
				return LoaderCancelled, nil
			}
			if err := l.loadBefore(ctx, lower); err != nil {
				if ctx.Err() != nil {
					return LoaderCancelled, nil
				}
				return LoaderFailed, err
			}
		}
	}
}

func (l *Loader) window() (lower, upper, total int) {
	l.list.mu.RLock()
	defer l.list.mu.RUnlock()
	return l.list.lower, l.list.upper(), l.list.total
}

func (l *Loader) loadAfter(ctx context.Context, upper, total int) error {
	start := upper + 1
	end := min(total-1, upper+l.step)

	entries, err := l.query(ctx, "forward", start, end)
	if err != nil {
		return err
	}
	if len(entries) > end-start+1 {
		entries = entries[:end-start+1]
	}
	if err := l.list.commitAfter(start, entries); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadPartialFailure, err)
	}
	metrics.LoaderEntriesLoaded.WithLabelValues("forward").Add(float64(len(entries)))

	// A short chunk is kept, then expansion stops.
	if len(entries) < end-start+1 {
		return fmt.Errorf("%w: got %d of %d entries at %d", ErrLoadPartialFailure, len(entries), end-start+1, start)
	}
	return nil
}

func (l *Loader) loadBefore(ctx context.Context, lower int) error {
	start := max(0, lower-l.step)
	end := lower - 1

	entries, err := l.query(ctx, "backward", start, end)
	if err != nil {
		return err
	}
	// Entries only line up with the lower bound when the chunk is complete.
	if len(entries) != end-start+1 {
		return fmt.Errorf("%w: got %d of %d entries at %d", ErrLoadPartialFailure, len(entries), end-start+1, start)
	}
	if err := l.list.commitBefore(start, entries); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadPartialFailure, err)
	}
	metrics.LoaderEntriesLoaded.WithLabelValues("backward").Add(float64(len(entries)))
	return nil
}

// query fetches a chunk and drops it when cancellation raced the call.
func (l *Loader) query(ctx context.Context, direction string, start, end int) ([]Entry, error) {
	timer := time.Now()
	entries, err := l.source.Query(ctx, l.filter, start, end)
	metrics.LoaderChunkDuration.WithLabelValues(direction).Observe(time.Since(timer).Seconds())

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w: query [%d,%d]: %v", ErrLoadPartialFailure, ErrSourceUnavailable, start, end, err)
	}
	return entries, nil
}

// stop cancels expansion and waits until the loader goroutine has exited.
// After stop returns the loader no longer touches the list. Only the owning
// engine stops its loader.
func (l *Loader) stop() {
	if l.cancel == nil {
		return
	}
	started := time.Now()
	l.cancel()
	<-l.done
	metrics.LoaderCancelWait.Observe(time.Since(started).Seconds())
}

// Wait blocks until the loader has stopped or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the loader goroutine has exited.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// State returns the loader's current state.
func (l *Loader) State() LoaderState {
	return LoaderState(l.state.Load())
}

// Err returns the failure that stopped a Failed loader. It is only
// meaningful once Done is closed.
func (l *Loader) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}
