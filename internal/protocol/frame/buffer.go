package frame

import "io"

// Buffer holds unconsumed stream bytes for one connection. Live bytes are
// data[off:]; consumed bytes ahead of off are reclaimed only when spare
// capacity runs short. It is not safe for concurrent use.
type Buffer struct {
	data []byte
	off  int
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, 0, capacity)}
}

func (b *Buffer) Len() int { return len(b.data) - b.off }

// Cap returns the capacity available to live bytes, excluding the consumed
// prefix.
func (b *Buffer) Cap() int { return cap(b.data) - b.off }

// Available returns the spare capacity after the buffered bytes.
func (b *Buffer) Available() int { return cap(b.data) - len(b.data) }

// Bytes returns the buffered bytes. The slice is valid until the next
// mutating call.
func (b *Buffer) Bytes() []byte { return b.data[b.off:] }

// Reserve ensures n bytes of spare capacity. The consumed prefix is
// reclaimed first; if that is not enough the buffer grows by n.
func (b *Buffer) Reserve(n int) {
	if n <= 0 || b.Available() >= n {
		return
	}
	if b.off > 0 {
		b.compact()
		if b.Available() >= n {
			return
		}
	}
	grown := make([]byte, len(b.data), cap(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

// Write appends p, growing as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// ReadOnce performs a single Read from r into the spare capacity.
func (b *Buffer) ReadOnce(r io.Reader) (int, error) {
	if b.Available() == 0 {
		b.Reserve(1)
	}
	start := len(b.data)
	n, err := r.Read(b.data[start:cap(b.data)])
	if n > 0 {
		b.data = b.data[:start+n]
	}
	return n, err
}

// Next removes the first n bytes and returns them in a fresh slice owned by
// the caller. The remaining bytes stay in place.
func (b *Buffer) Next(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	out := make([]byte, n)
	copy(out, b.data[b.off:b.off+n])
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
	return out
}

func (b *Buffer) compact() {
	live := copy(b.data, b.data[b.off:])
	clear(b.data[live:])
	b.data = b.data[:live]
	b.off = 0
}
