// ABOUTME: Fixed-capacity FIFO ring that evicts the oldest element on overflow
// ABOUTME: Not safe for concurrent use; Monologue guards it with its own mutex

package monologue

// Ring holds at most Cap items. Pushing onto a full ring overwrites the oldest.
// A ring with capacity 0 retains nothing.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing creates a ring with the given capacity. Negative capacities become 0.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(capacity, 0))}
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of retained items.
func (r *Ring[T]) Len() int { return r.n }

// Push appends v and reports whether an older item was evicted to make room.
func (r *Ring[T]) Push(v T) (evicted bool) {
	if len(r.buf) == 0 {
		return true
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Items returns the retained items oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Resize changes the capacity, keeping the most recent items that fit.
func (r *Ring[T]) Resize(capacity int) {
	items := r.Items()
	capacity = max(capacity, 0)
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	r.buf = make([]T, capacity)
	r.start = 0
	r.n = copy(r.buf, items)
}

// Clear drops every item and keeps the capacity.
func (r *Ring[T]) Clear() {
	clear(r.buf)
	r.start = 0
	r.n = 0
}
