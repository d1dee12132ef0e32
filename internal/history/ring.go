// Package history keeps bounded in-memory records of breaker activity:
// response times, error occurrences, state transitions, and outcome
// samples. All records live in fixed-capacity ring buffers, so memory use
// is constant no matter how long a breaker runs.
package history

// Ring is a fixed-capacity circular buffer. Appending beyond capacity
// evicts the oldest entry in O(1); there is no shifting. Ring is not
// goroutine-safe; the owning breaker's lock serializes access.
type Ring[T any] struct {
	buf   []T
	head  int // next write position
	count int // entries stored, up to cap(buf)
}

// NewRing creates a ring holding at most capacity entries.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append stores v, evicting the oldest entry when full.
func (r *Ring[T]) Append(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int { return r.count }

// Items returns the stored entries oldest-first as a fresh slice.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// Reset discards all entries.
func (r *Ring[T]) Reset() {
	r.head = 0
	r.count = 0
}
