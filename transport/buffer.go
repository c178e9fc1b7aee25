package transport

import (
	"sync"
)

// Buffer is a resizable byte buffer with explicit capacity and a headroom
// offset, so a higher layer can prepend small headers without copying the
// payload. Buffers are recycled through a FreeList between uses.
type Buffer struct {
	data []byte
	off  int
	n    int
}

// NewBuffer allocates a buffer with the given capacity and no headroom.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// NewBufferFrom allocates a buffer holding a copy of p.
func NewBufferFrom(p []byte) *Buffer {
	b := NewBuffer(len(p))
	b.Append(p)
	return b
}

// Len returns the number of payload bytes.
func (b *Buffer) Len() int { return b.n }

// Cap returns the total backing capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the payload region. The slice aliases the buffer and is
// invalidated by Reset or Grow.
func (b *Buffer) Bytes() []byte { return b.data[b.off : b.off+b.n] }

// Reset empties the buffer and sets the headroom offset for the next use.
func (b *Buffer) Reset(headroom int) {
	if headroom > len(b.data) {
		headroom = len(b.data)
	}
	b.off = headroom
	b.n = 0
}

// Grow ensures capacity for at least size payload bytes past the current
// offset, reallocating if needed. The payload is preserved.
func (b *Buffer) Grow(size int) {
	need := b.off + size
	if need <= len(b.data) {
		return
	}
	nd := make([]byte, need)
	copy(nd[b.off:], b.Bytes())
	b.data = nd
}

// Append copies p onto the end of the payload, growing if needed.
func (b *Buffer) Append(p []byte) {
	b.Grow(b.n + len(p))
	copy(b.data[b.off+b.n:], p)
	b.n += len(p)
}

// Prepend copies p into the headroom in front of the payload. It reports
// false if the headroom is too small.
func (b *Buffer) Prepend(p []byte) bool {
	if len(p) > b.off {
		return false
	}
	b.off -= len(p)
	b.n += len(p)
	copy(b.data[b.off:], p)
	return true
}

// setLen marks size bytes past the offset as payload, for reads performed
// directly into the backing array.
func (b *Buffer) setLen(size int) {
	b.n = size
}

// writable returns the backing region for a direct read of size bytes.
func (b *Buffer) writable(size int) []byte {
	b.Grow(size)
	return b.data[b.off : b.off+size]
}

// FreeList is a bounded pool of previously allocated buffers. Get reuses
// a pooled buffer before allocating fresh memory; Put discards buffers
// beyond the configured maximum. It is safe for use by a link's reader
// and writer goroutines.
type FreeList struct {
	mu       sync.Mutex
	bufs     []*Buffer
	max      int
	sizeHint int
}

// NewFreeList builds a pool bounded at max buffers, allocating fresh
// buffers at sizeHint capacity.
func NewFreeList(max, sizeHint int) *FreeList {
	return &FreeList{max: max, sizeHint: sizeHint}
}

// Get returns a pooled buffer if one is available, otherwise a fresh
// allocation of the configured size hint.
func (f *FreeList) Get() *Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.bufs); n > 0 {
		b := f.bufs[n-1]
		f.bufs = f.bufs[:n-1]
		return b
	}
	return NewBuffer(f.sizeHint)
}

// Put returns a buffer to the pool, dropping it if the pool is full.
func (f *FreeList) Put(b *Buffer) {
	if b == nil {
		return
	}
	b.Reset(0)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.bufs) < f.max {
		f.bufs = append(f.bufs, b)
	}
}

// Size returns the number of pooled buffers.
func (f *FreeList) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bufs)
}
