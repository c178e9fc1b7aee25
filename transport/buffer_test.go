package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferAppendAndGrow(t *testing.T) {
	b := NewBuffer(4)
	b.Append([]byte("hello world"))

	assert.Equal(t, 11, b.Len())
	assert.Equal(t, []byte("hello world"), b.Bytes())
	assert.GreaterOrEqual(t, b.Cap(), 11)
}

func TestBufferPrepend(t *testing.T) {
	b := NewBuffer(16)
	b.Reset(4)
	b.Append([]byte("payload"))

	assert.True(t, b.Prepend([]byte{0xAB, 0xCD}))
	assert.Equal(t, []byte{0xAB, 0xCD, 'p', 'a', 'y', 'l', 'o', 'a', 'd'}, b.Bytes())

	// Headroom is down to 2 bytes now.
	assert.False(t, b.Prepend([]byte{1, 2, 3}))
}

func TestBufferReset(t *testing.T) {
	b := NewBufferFrom([]byte("data"))
	b.Reset(0)

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestFreeListBounded(t *testing.T) {
	const max = 3
	f := NewFreeList(max, 64)

	// Returning more than max buffers never grows the pool beyond max.
	for i := 0; i < max*2; i++ {
		f.Put(NewBuffer(64))
	}
	assert.Equal(t, max, f.Size())
}

func TestFreeListReusesBeforeAllocating(t *testing.T) {
	f := NewFreeList(4, 64)

	b := NewBuffer(64)
	f.Put(b)

	got := f.Get()
	assert.Same(t, b, got, "non-empty pool must satisfy requests without allocating")
	assert.Equal(t, 0, f.Size())

	// Empty pool allocates at the size hint.
	fresh := f.Get()
	assert.NotSame(t, b, fresh)
	assert.Equal(t, 64, fresh.Cap())
}

func TestFreeListPutNil(t *testing.T) {
	f := NewFreeList(2, 64)
	f.Put(nil)
	assert.Equal(t, 0, f.Size())
}
