// Package changes carries insert/update/delete notifications from data
// producers (the SQLite store, the filesystem watcher) to media lists.
package changes

import (
	"fmt"
	"strings"
	"sync"
)

// Kind is the type of change reported for an entry.
type Kind int

const (
	// Insert reports a new item in the underlying collection.
	Insert Kind = iota
	// Update reports changed path fields of an existing item (e.g. a rename).
	Update
	// Delete reports an item removed from the underlying collection.
	Delete
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the name produced by String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "insert":
		return Insert, nil
	case "update":
		return Update, nil
	case "delete":
		return Delete, nil
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}

// Change is a single notification. ID is zero when the producer could not
// resolve the item's identity (filesystem events for unindexed files).
type Change struct {
	ID   int64
	Kind Kind
	Path string
	// OldPath is set on updates that move an item.
	OldPath string
}

// Handler consumes changes. Handlers may be invoked from any goroutine.
type Handler func(Change)

// Hub fans changes out to subscribers. It is safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (h *Hub) Subscribe(handler Handler) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = handler
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers c to every current subscriber on the caller's goroutine.
// A nil hub drops the change.
func (h *Hub) Publish(c Change) {
	if h == nil {
		return
	}
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs))
	for _, handler := range h.subs {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(c)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
