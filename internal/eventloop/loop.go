// Package eventloop runs jobs on a single foreground goroutine.
//
// Jobs are posted from any goroutine and executed in posting order. A job
// posted with a non-empty key replaces any job with the same key that has
// not run yet, so a burst of "work finished" signals for one owner collapses
// into a single delivery.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do once the loop has stopped running.
var ErrStopped = errors.New("event loop stopped")

type job struct {
	key string
	fn  func()
}

// Loop is a single-consumer job queue.
type Loop struct {
	mu      sync.Mutex
	jobs    []*job
	byKey   map[string]*job
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// New creates a loop. Call Run to start consuming jobs.
func New() *Loop {
	return &Loop{
		byKey: make(map[string]*job),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Post queues fn. When key is non-empty and a job with the same key is still
// pending, that job's function is replaced in place and keeps its position.
// Posting to a stopped loop drops the job.
func (l *Loop) Post(key string, fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if key != "" {
		if pending, ok := l.byKey[key]; ok {
			pending.fn = fn
			l.mu.Unlock()
			return
		}
	}
	j := &job{key: key, fn: fn}
	l.jobs = append(l.jobs, j)
	if key != "" {
		l.byKey[key] = j
	}
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() *job {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.jobs) == 0 {
		return nil
	}
	j := l.jobs[0]
	l.jobs[0] = nil
	l.jobs = l.jobs[1:]
	if j.key != "" {
		delete(l.byKey, j.key)
	}
	return j
}

// Run executes jobs until ctx is cancelled. Pending jobs are discarded when
// Run returns, and the loop cannot be restarted.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	for {
		for j := l.next(); j != nil; j = l.next() {
			j.fn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return
	}
	l.stopped = true
	l.jobs = nil
	l.byKey = make(map[string]*job)
	close(l.done)
}

// Stop stops a loop that is not being driven by Run.
func (l *Loop) Stop() {
	l.stop()
}

// Drain runs every pending job on the calling goroutine, including jobs
// posted while draining, and returns how many ran. It must not be used
// concurrently with Run.
func (l *Loop) Drain() int {
	n := 0
	for j := l.next(); j != nil; j = l.next() {
		j.fn()
		n++
	}
	return n
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post("", func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The job may have run just before the loop stopped.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Len returns the number of pending jobs.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
