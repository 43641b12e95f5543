package capture

// Ring is a bounded FIFO of audio samples holding the most recent history.
// Chunks are stored as segments so appends stay cheap; eviction trims the
// oldest segment partially when a chunk boundary does not line up. Ring is
// not safe for concurrent use; the Manager serializes access.
type Ring struct {
	capacity int
	segments [][]float32
	length   int
}

// NewRing creates a ring holding at most capacity samples
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{capacity: capacity}
}

// Extend appends a chunk, evicting the oldest samples once the ring is full.
// The chunk is copied; the caller may reuse its slice.
func (r *Ring) Extend(chunk []float32) {
	if len(chunk) == 0 {
		return
	}

	// A chunk larger than the ring reduces to its tail
	if len(chunk) > r.capacity {
		chunk = chunk[len(chunk)-r.capacity:]
	}

	seg := make([]float32, len(chunk))
	copy(seg, chunk)
	r.segments = append(r.segments, seg)
	r.length += len(seg)

	for r.length > r.capacity {
		overflow := r.length - r.capacity
		oldest := r.segments[0]

		if overflow >= len(oldest) {
			r.segments = r.segments[1:]
			r.length -= len(oldest)
			continue
		}

		r.segments[0] = oldest[overflow:]
		r.length -= overflow
	}
}

// Recent returns up to n of the most recent samples in chronological order.
// When fewer than n samples are buffered, all of them are returned.
func (r *Ring) Recent(n int) []float32 {
	if n <= 0 {
		return nil
	}

	if n > r.length {
		n = r.length
	}

	out := make([]float32, n)
	pos := n

	for i := len(r.segments) - 1; i >= 0 && pos > 0; i-- {
		seg := r.segments[i]
		take := len(seg)
		if take > pos {
			take = pos
		}
		copy(out[pos-take:pos], seg[len(seg)-take:])
		pos -= take
	}

	return out
}

// Len returns the number of buffered samples
func (r *Ring) Len() int {
	return r.length
}

// Capacity returns the maximum number of buffered samples
func (r *Ring) Capacity() int {
	return r.capacity
}
