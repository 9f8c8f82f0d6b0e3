package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gallery/internal/changes"
	"gallery/internal/eventloop"
	"gallery/internal/logging"
	"gallery/internal/medialist"
	"gallery/internal/metrics"
)

// ErrNotFound is returned for an unknown or closed session ID.
var ErrNotFound = errors.New("session not found")

const closeTimeout = 10 * time.Second

// Options configure the engines created for new sessions.
type Options struct {
	WindowSize int
	// Seed fixes the shuffle order of every session. Zero gives each
	// session its own time based seed.
	Seed uint64
	// IdleTimeout closes sessions that have not been used for this long.
	// Zero disables reaping.
	IdleTimeout time.Duration
}

// Session is one open media list.
type Session struct {
	ID      string
	Created time.Time

	loop     *eventloop.Loop
	engine   *medialist.Engine
	stop     context.CancelFunc
	lastUsed atomic.Int64
	closed   atomic.Bool
	released chan struct{}
}

// Do runs fn with the session's engine on the session's loop and returns
// its error.
func (s *Session) Do(ctx context.Context, fn func(e *medialist.Engine) error) error {
	if s.closed.Load() {
		return ErrNotFound
	}
	s.touch()

	var err error
	if doErr := s.loop.Do(ctx, func() { err = fn(s.engine) }); doErr != nil {
		if errors.Is(doErr, eventloop.ErrStopped) {
			return ErrNotFound
		}
		return doErr
	}
	return err
}

// LastUsed returns when the session last ran a call.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// Released is closed once the session's engine has been torn down.
func (s *Session) Released() <-chan struct{} {
	return s.released
}

func (s *Session) close() {
	s.closeWithin(closeTimeout)
}

// closeWithin closes the engine on the loop. When the loop is too busy to
// run the close in time it is stopped instead, and the engine is closed as
// soon as the loop's last job has returned.
func (s *Session) closeWithin(timeout time.Duration) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.loop.Do(ctx, s.engine.Close)
	s.stop()
	if err == nil {
		close(s.released)
		return
	}

	logging.Warn("Session %s did not close in %v, finishing in the background: %v", s.ID, timeout, err)
	go func() {
		<-s.loop.Done()
		s.engine.Close()
		close(s.released)
	}()
}

// Manager creates and tracks sessions.
type Manager struct {
	source medialist.ItemSource
	hub    *changes.Hub
	opts   Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions read from source and follow
// hub. hub may be nil.
func NewManager(source medialist.ItemSource, hub *changes.Hub, opts Options) *Manager {
	if opts.WindowSize <= 0 {
		opts.WindowSize = medialist.DefaultWindowSize
	}
	return &Manager{
		source:   source,
		hub:      hub,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session and loads f into it.
func (m *Manager) Create(ctx context.Context, f medialist.Filter) (*Session, error) {
	id := uuid.NewString()
	loop := eventloop.New()

	engine, err := medialist.NewEngine(m.source, loop, medialist.Config{
		WindowSize: m.opts.WindowSize,
		Seed:       m.opts.Seed,
		Key:        "session:" + id,
		OnLoaded: func(r medialist.LoadResult) {
			for _, err := range r.Rejected {
				logging.Warn("Session %s dropped a list change: %v", id, err)
			}
			if r.Err != nil {
				logging.Warn("Session %s finished loading in state %s: %v", id, r.State, r.Err)
				return
			}
			logging.Debug("Session %s finished loading", id)
		},
	})
	if err != nil {
		return nil, err
	}

	runCtx, stop := context.WithCancel(context.Background())
	go func() {
		if err := loop.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Session %s loop stopped: %v", id, err)
		}
	}()

	s := &Session{
		ID:       id,
		Created:  time.Now(),
		loop:     loop,
		engine:   engine,
		stop:     stop,
		released: make(chan struct{}),
	}
	s.touch()

	if m.hub != nil {
		engine.Subscribe(m.hub)
	}

	err = s.Do(ctx, func(e *medialist.Engine) error {
		_, err := e.Load(ctx, f)
		return err
	})
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to load %s collection: %w", f.Scope, err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SessionsActive.Set(float64(n))

	logging.Debug("Opened session %s (%s, %s)", id, f.Scope, f.Strategy())
	return s, nil
}

// Get returns the open session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Close closes and forgets the session with id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.SessionsActive.Set(float64(n))
	s.close()
	logging.Debug("Closed session %s", id)
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		open = append(open, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	metrics.SessionsActive.Set(0)
	for _, s := range open {
		s.close()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes sessions idle since before now minus the idle timeout and
// returns how many were closed.
func (m *Manager) Reap(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-m.opts.IdleTimeout)

	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	closed := 0
	for _, id := range idle {
		if m.Close(id) == nil {
			closed++
		}
	}
	if closed > 0 {
		logging.Info("Closed %d idle sessions", closed)
	}
	return closed
}

// Run reaps idle sessions until ctx is cancelled, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	defer m.CloseAll()

	if m.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.opts.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}
