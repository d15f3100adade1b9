// SPDX-License-Identifier: MIT
package analysis

// RingBuffer is a fixed-capacity sample buffer with a single write cursor.
// It is filled from index 0 and wraps back to 0 once full, so a full buffer
// always holds its samples in arrival order. It is owned by the pipeline and
// not safe for concurrent use.
type RingBuffer struct {
	buf []float64
	loc int
}

// NewRingBuffer allocates a buffer of the given capacity, which must be
// positive.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buf: make([]float64, capacity)}
}

// Push writes x at the cursor and advances it. It reports true when the
// write filled the buffer; the cursor is then back at 0.
func (r *RingBuffer) Push(x float64) bool {
	r.buf[r.loc] = x
	r.loc++
	if r.loc == len(r.buf) {
		r.loc = 0
		return true
	}
	return false
}

// Reset discards the partial fill by moving the cursor back to 0.
func (r *RingBuffer) Reset() { r.loc = 0 }

// Loc returns the write cursor, in [0, Cap()).
func (r *RingBuffer) Loc() int { return r.loc }

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Samples returns the backing slice. Its contents are only meaningful
// immediately after Push reported a full buffer.
func (r *RingBuffer) Samples() []float64 { return r.buf }
