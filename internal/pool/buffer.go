// Package pool provides a pooled growable byte buffer used by the codec
// layer to avoid per-block allocation on the write path.
package pool

import "sync"

const (
	// BlockBufferDefaultSize is sized for a freshly-flushed block's
	// uncompressed serialized form before LZ4 compression.
	BlockBufferDefaultSize = 64 * 1024
	// BlockBufferMaxThreshold discards buffers larger than this on Put so
	// one oversized block doesn't pin memory for the pool's lifetime.
	BlockBufferMaxThreshold = 4 * 1024 * 1024
)

// Buffer is a reusable byte slice with amortized growth.
type Buffer struct {
	B []byte
}

func NewBuffer(defaultSize int) *Buffer {
	return &Buffer{B: make([]byte, 0, defaultSize)}
}

func (b *Buffer) Bytes() []byte { return b.B }
func (b *Buffer) Len() int      { return len(b.B) }
func (b *Buffer) Cap() int      { return cap(b.B) }
func (b *Buffer) Reset()        { b.B = b.B[:0] }

func (b *Buffer) Write(data []byte) {
	b.B = append(b.B, data...)
}

// Grow ensures at least requiredBytes of spare capacity. It grows by
// BlockBufferDefaultSize, or by a quarter of the capacity once that exceeds
// 4*BlockBufferDefaultSize, or by requiredBytes when that is larger.
func (b *Buffer) Grow(requiredBytes int) {
	available := cap(b.B) - len(b.B)
	if available >= requiredBytes {
		return
	}
	growBy := BlockBufferDefaultSize
	if cap(b.B) > 4*BlockBufferDefaultSize {
		growBy = cap(b.B) / 4
	}
	if growBy < requiredBytes {
		growBy = requiredBytes
	}
	newBuf := make([]byte, len(b.B), len(b.B)+growBy)
	copy(newBuf, b.B)
	b.B = newBuf
}

// BufferPool recycles Buffers via sync.Pool, discarding ones that grew
// past maxThreshold instead of returning them to the pool.
type BufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

func NewBufferPool(defaultSize, maxThreshold int) *BufferPool {
	return &BufferPool{
		pool:         sync.Pool{New: func() any { return NewBuffer(defaultSize) }},
		maxThreshold: maxThreshold,
	}
}

func (p *BufferPool) Get() *Buffer {
	buf, _ := p.pool.Get().(*Buffer)
	return buf
}

func (p *BufferPool) Put(b *Buffer) {
	if b == nil {
		return
	}
	if p.maxThreshold > 0 && cap(b.B) > p.maxThreshold {
		return
	}
	b.Reset()
	p.pool.Put(b)
}

var blockPool = NewBufferPool(BlockBufferDefaultSize, BlockBufferMaxThreshold)

// GetBlockBuffer retrieves a Buffer from the shared block-sized pool.
func GetBlockBuffer() *Buffer { return blockPool.Get() }

// PutBlockBuffer returns a Buffer to the shared block-sized pool.
func PutBlockBuffer(b *Buffer) { blockPool.Put(b) }
