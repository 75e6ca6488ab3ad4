package source

// Buffer is a growable byte arena with a first-valid-byte cursor.
//
// Consumed bytes are released by moving the cursor; the arena is compacted
// in place only when a reservation does not fit at the tail, and grown only
// when compaction is not enough. Slices returned by Bytes are invalidated by
// the next Reserve or Write.
type Buffer struct {
	buf   []byte
	start int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultChunkSize
	}
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the unconsumed bytes.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.start:]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.start
}

// Cap returns the arena capacity.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Consume releases the first n unconsumed bytes. n is clamped to Len.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if avail := b.Len(); n > avail {
		n = avail
	}
	b.start += n
	if b.start == len(b.buf) {
		b.buf = b.buf[:0]
		b.start = 0
	}
}

// Reserve guarantees room for at least n more bytes and returns the
// writable tail. Callers fill a prefix of the tail and call Commit.
func (b *Buffer) Reserve(n int) []byte {
	if cap(b.buf)-len(b.buf) < n && b.start > 0 {
		m := copy(b.buf, b.buf[b.start:])
		b.buf = b.buf[:m]
		b.start = 0
	}
	if cap(b.buf)-len(b.buf) < n {
		grown := make([]byte, len(b.buf), 2*cap(b.buf)+n)
		copy(grown, b.buf)
		b.buf = grown
	}
	return b.buf[len(b.buf):cap(b.buf)]
}

// Commit appends n bytes previously written into the tail returned by Reserve.
func (b *Buffer) Commit(n int) {
	b.buf = b.buf[:len(b.buf)+n]
}

// Write appends p. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	tail := b.Reserve(len(p))
	copy(tail, p)
	b.Commit(len(p))
	return len(p), nil
}

// WriteByte appends a single byte. It never fails.
func (b *Buffer) WriteByte(c byte) error {
	tail := b.Reserve(1)
	tail[0] = c
	b.Commit(1)
	return nil
}
