package medialist

// Cursor is an opaque handle to one loaded entry. Cursors are comparable;
// a cursor goes stale when its entry is removed or the list is reloaded.
// The zero Cursor refers to nothing.
type Cursor struct {
	slot int32
	gen  uint32
}

// IsZero reports whether c refers to nothing.
func (c Cursor) IsZero() bool {
	return c.gen == 0
}
