package optimize

import (
	"bytes"
	"sync"
)

// maxPooledBufferSize caps what Put recycles. One oversized payload would
// otherwise pin its memory in the pool indefinitely.
const maxPooledBufferSize = 1 << 16

// BufferPool recycles byte buffers across encode cycles. Get always returns
// an empty buffer; callers must not touch a buffer after putting it back.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates an empty buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Get returns an empty buffer ready for writing.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets the buffer and returns it to the pool. Buffers that grew past
// maxPooledBufferSize are dropped instead.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBufferSize {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}
