package io

import (
	"sync"
)

const (
	// DefaultBufferSize is the default size for TCP message buffers.
	DefaultBufferSize = 4096

	// DefaultUDPSize is the receive buffer for UDP queries.
	// SOA pollers do not use EDNS0, so classic 512 bytes is enough.
	DefaultUDPSize = 512
)

// BufferPool manages reusable byte buffers for reading queries.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get retrieves a buffer from the pool.
// Caller must call Put() to return the buffer.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:bp.size]
}

// Put returns a buffer to the pool for reuse.
// Buffers smaller than the pool size are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) < bp.size {
		return
	}
	bp.pool.Put(&buf)
}

// Size returns the size of buffers handed out by the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}
