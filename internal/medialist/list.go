package medialist

import (
	"fmt"
	"path/filepath"
	"sync"
)

type node struct {
	entry Entry
	gen   uint32
	live  bool
}

// List is the loaded block of a collection. Entries live in an arena and
// order holds their slots in rank order, so order[k] has Index lower+k.
//
// A List is safe for concurrent readers. Writes come from the engine's
// foreground goroutine, or from its background loader while the engine
// holds structural mutations back.
type List struct {
	mu sync.RWMutex

	nodes []node
	free  []int32
	order []int32
	lower int
	total int

	current  Cursor
	previous Cursor
	filter   Filter
}

func newList() *List {
	return &List{}
}

func (l *List) alloc(e Entry) int32 {
	var slot int32
	if n := len(l.free); n > 0 {
		slot = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		slot = int32(len(l.nodes))
		l.nodes = append(l.nodes, node{})
	}
	n := &l.nodes[slot]
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	n.entry = e
	n.live = true
	return slot
}

func (l *List) release(slot int32) {
	n := &l.nodes[slot]
	n.live = false
	n.entry = Entry{}
	l.free = append(l.free, slot)
}

func (l *List) cursorFor(slot int32) Cursor {
	return Cursor{slot: slot, gen: l.nodes[slot].gen}
}

// lookup returns the node for c. Callers hold the lock.
func (l *List) lookup(c Cursor) (*node, bool) {
	if c.IsZero() || c.slot < 0 || int(c.slot) >= len(l.nodes) {
		return nil, false
	}
	n := &l.nodes[c.slot]
	if !n.live || n.gen != c.gen {
		return nil, false
	}
	return n, true
}

// rank returns the position of c within order. Callers hold the lock.
func (l *List) rank(c Cursor) (int, bool) {
	n, ok := l.lookup(c)
	if !ok {
		return 0, false
	}
	return n.entry.Index - l.lower, true
}

func (l *List) upper() int {
	return l.lower + len(l.order) - 1
}

func (l *List) fullyLoaded() bool {
	return l.total > 0 && l.lower == 0 && l.upper() == l.total-1
}

// reset replaces the block. Every existing cursor goes stale.
func (l *List) reset(f Filter, total, lower int, entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, slot := range l.order {
		l.release(slot)
	}
	l.order = l.order[:0]
	l.filter = f
	l.total = total
	l.lower = lower
	l.current = Cursor{}
	l.previous = Cursor{}
	for i, e := range entries {
		e.Index = lower + i
		l.order = append(l.order, l.alloc(e))
	}
}

// commitAfter appends a chunk starting right after the upper bound.
func (l *List) commitAfter(start int, entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start != l.upper()+1 {
		return fmt.Errorf("chunk starts at %d, upper bound is %d", start, l.upper())
	}
	if l.upper()+len(entries) > l.total-1 {
		return fmt.Errorf("chunk of %d at %d overruns total %d", len(entries), start, l.total)
	}
	for i, e := range entries {
		e.Index = start + i
		l.order = append(l.order, l.alloc(e))
	}
	return nil
}

// commitBefore prepends a chunk that ends right before the lower bound.
func (l *List) commitBefore(start int, entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start+len(entries) != l.lower || start < 0 {
		return fmt.Errorf("chunk %d+%d does not end at lower bound %d", start, len(entries), l.lower)
	}
	slots := make([]int32, 0, len(entries)+len(l.order))
	for i, e := range entries {
		e.Index = start + i
		slots = append(slots, l.alloc(e))
	}
	l.order = append(slots, l.order...)
	l.lower = start
	return nil
}

// remove deletes the entry at c, shifts its followers down by one and
// moves current and previous off it.
func (l *List) remove(c Cursor) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k, ok := l.rank(c)
	if !ok {
		return Entry{}, ErrItemNotFound
	}
	removed := l.nodes[c.slot].entry

	// Neighbours are resolved before the slot is released.
	var replacement Cursor
	if k+1 < len(l.order) {
		replacement = l.cursorFor(l.order[k+1])
	} else if k > 0 {
		replacement = l.cursorFor(l.order[k-1])
	}

	l.release(c.slot)
	l.order = append(l.order[:k], l.order[k+1:]...)
	for _, slot := range l.order[k:] {
		l.nodes[slot].entry.Index--
	}
	l.total--
	if len(l.order) == 0 {
		l.lower = 0
	}

	if l.current == c {
		l.current = replacement
	}
	if l.previous == c {
		l.previous = replacement
	}
	return removed, nil
}

// insertFront adds e at rank 0. The lower bound must be 0.
func (l *List) insertFront(e Entry) (Cursor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lower != 0 {
		return Cursor{}, ErrWindowEdge
	}
	for _, slot := range l.order {
		l.nodes[slot].entry.Index++
	}
	e.Index = 0
	slot := l.alloc(e)
	l.order = append([]int32{slot}, l.order...)
	l.total++
	c := l.cursorFor(slot)
	if l.current.IsZero() {
		l.current = c
	}
	return c, nil
}

// insertBack adds e at rank total. The upper bound must be total-1.
func (l *List) insertBack(e Entry) (Cursor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.upper() != l.total-1 {
		return Cursor{}, ErrWindowEdge
	}
	e.Index = l.total
	if len(l.order) == 0 {
		l.lower = l.total
	}
	slot := l.alloc(e)
	l.order = append(l.order, slot)
	l.total++
	c := l.cursorFor(slot)
	if l.current.IsZero() {
		l.current = c
	}
	return c, nil
}

// patch applies fn to every loaded entry matching match and reports how
// many changed. Index is restored after fn.
func (l *List) patch(match func(Entry) bool, fn func(*Entry)) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, slot := range l.order {
		e := &l.nodes[slot].entry
		if !match(*e) {
			continue
		}
		index := e.Index
		fn(e)
		e.Index = index
		n++
	}
	return n
}

func (l *List) setState(c Cursor, s State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.lookup(c)
	if !ok {
		return false
	}
	n.entry.State = s
	return true
}

// moveTo makes c current and the old current previous.
func (l *List) moveTo(c Cursor) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.lookup(c); !ok {
		return false
	}
	if c != l.current {
		l.previous = l.current
		l.current = c
	}
	return true
}

// Entry returns the entry c refers to.
func (l *List) Entry(c Cursor) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n, ok := l.lookup(c)
	if !ok {
		return Entry{}, false
	}
	return n.entry, true
}

// Valid reports whether c refers to a loaded entry.
func (l *List) Valid(c Cursor) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.lookup(c)
	return ok
}

// Next returns the entry after c in the loaded block. It reports false at
// the upper bound even when more entries exist beyond it.
func (l *List) Next(c Cursor) (Cursor, bool) {
	return l.step(c, 1)
}

// Prev returns the entry before c in the loaded block.
func (l *List) Prev(c Cursor) (Cursor, bool) {
	return l.step(c, -1)
}

func (l *List) step(c Cursor, delta int) (Cursor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	k, ok := l.rank(c)
	if !ok {
		return Cursor{}, false
	}
	k += delta
	if k < 0 || k >= len(l.order) {
		return Cursor{}, false
	}
	return l.cursorFor(l.order[k]), true
}

// FindByIndex returns the loaded entry ranked index.
func (l *List) FindByIndex(index int) (Cursor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	k := index - l.lower
	if k < 0 || k >= len(l.order) {
		return Cursor{}, false
	}
	return l.cursorFor(l.order[k]), true
}

// FindByFilename returns the first loaded entry whose path or filename is
// name.
func (l *List) FindByFilename(name string) (Cursor, bool) {
	base := filepath.Base(name)
	byPath := base != name
	return l.find(func(e Entry) bool {
		if byPath {
			return e.Path == name
		}
		return e.Filename() == name
	})
}

// FindByID returns the loaded entry with the given ID.
func (l *List) FindByID(id int64) (Cursor, bool) {
	return l.find(func(e Entry) bool { return e.ID == id })
}

func (l *List) find(match func(Entry) bool) (Cursor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, slot := range l.order {
		if match(l.nodes[slot].entry) {
			return l.cursorFor(slot), true
		}
	}
	return Cursor{}, false
}

// Current returns the current cursor, which may be zero.
func (l *List) Current() Cursor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Previous returns the previously current cursor, which may be zero.
func (l *List) Previous() Cursor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.previous
}

// Total returns the size of the full collection.
func (l *List) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Len returns the number of loaded entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Bounds returns the inclusive loaded window. ok is false when nothing is
// loaded.
func (l *List) Bounds() (lower, upper int, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.order) == 0 {
		return 0, -1, false
	}
	return l.lower, l.upper(), true
}

// FullyLoaded reports whether the loaded window covers the whole collection.
func (l *List) FullyLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fullyLoaded()
}

// Filter returns the filter the list was loaded with.
func (l *List) Filter() Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter
}

// Entries returns a copy of the loaded block in rank order.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.order))
	for i, slot := range l.order {
		out[i] = l.nodes[slot].entry
	}
	return out
}

// Snapshot is a consistent view of a list's window and cursors.
type Snapshot struct {
	Total    int    `json:"total"`
	Lower    int    `json:"lower"`
	Upper    int    `json:"upper"`
	Loaded   int    `json:"loaded"`
	Current  *Entry `json:"current,omitempty"`
	Previous *Entry `json:"previous,omitempty"`
}

// Snapshot returns the window and cursor entries under one lock.
func (l *List) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Snapshot{Total: l.total, Lower: l.lower, Upper: l.upper(), Loaded: len(l.order)}
	if len(l.order) == 0 {
		s.Lower, s.Upper = 0, -1
	}
	if n, ok := l.lookup(l.current); ok {
		e := n.entry
		s.Current = &e
	}
	if n, ok := l.lookup(l.previous); ok {
		e := n.entry
		s.Previous = &e
	}
	return s
}

// checkInvariants verifies the block is contiguous and correctly indexed.
func (l *List) checkInvariants() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.total < 0 {
		return fmt.Errorf("negative total %d", l.total)
	}
	if l.total == 0 && (l.lower != 0 || len(l.order) > 0) {
		return fmt.Errorf("empty collection with window [%d,%d]", l.lower, l.upper())
	}
	if l.lower < 0 || l.upper() > l.total-1 {
		return fmt.Errorf("window [%d,%d] outside [0,%d]", l.lower, l.upper(), l.total-1)
	}
	if len(l.order) > 0 && l.current.IsZero() {
		return fmt.Errorf("no current entry in a block of %d", len(l.order))
	}
	for k, slot := range l.order {
		n := l.nodes[slot]
		if !n.live {
			return fmt.Errorf("rank %d refers to a released slot", k)
		}
		if n.entry.Index != l.lower+k {
			return fmt.Errorf("rank %d has index %d, want %d", k, n.entry.Index, l.lower+k)
		}
	}
	for _, c := range []Cursor{l.current, l.previous} {
		if c.IsZero() {
			continue
		}
		if _, ok := l.lookup(c); !ok {
			return fmt.Errorf("cursor %+v refers to no loaded entry", c)
		}
	}
	return nil
}

// atEdge reports whether an insert at the front (or back) keeps the block
// contiguous.
func (l *List) atEdge(front bool) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if front {
		return l.lower == 0 && (len(l.order) > 0 || l.total == 0)
	}
	return l.upper() == l.total-1
}
