// uartx/ringbuffer.go

package uartx

import "sync/atomic"

// RingBuffer is a fixed-capacity byte FIFO for exactly one producer and one
// consumer. Put rejects new bytes when full; existing entries are never
// overwritten.
//
// head and tail are free-running counters. The producer writes the slot and
// then publishes head; the consumer reads the slot and then publishes tail.
type RingBuffer struct {
	buf  []byte
	mask uint32
	head atomic.Uint32 // next write, owned by the producer
	tail atomic.Uint32 // next read, owned by the consumer
}

// NewRingBuffer returns a ring holding at least size bytes. The capacity is
// rounded up to a power of two so the free-running indices wrap cleanly.
func NewRingBuffer(size int) *RingBuffer {
	n := 1
	for n < size {
		n <<= 1
	}
	return &RingBuffer{buf: make([]byte, n), mask: uint32(n - 1)}
}

// Size returns the total capacity of the buffer in bytes.
func (rb *RingBuffer) Size() int {
	return len(rb.buf)
}

// Used returns how many bytes in buffer have been used.
func (rb *RingBuffer) Used() int {
	return int(rb.head.Load() - rb.tail.Load())
}

// Put stores a byte in the buffer. If the buffer is already full, it returns false.
func (rb *RingBuffer) Put(val byte) bool {
	h := rb.head.Load()
	if h-rb.tail.Load() == uint32(len(rb.buf)) {
		return false
	}
	rb.buf[h&rb.mask] = val // 1) write data
	rb.head.Store(h + 1)    // 2) publish
	return true
}

// Get returns a byte from the buffer. If the buffer is empty, it returns (0, false).
func (rb *RingBuffer) Get() (byte, bool) {
	t := rb.tail.Load()
	if rb.head.Load() == t {
		return 0, false
	}
	v := rb.buf[t&rb.mask] // 1) read current element
	rb.tail.Store(t + 1)   // 2) publish consumption
	return v, true
}

// Clear discards the contents. Only safe while neither side is active.
func (rb *RingBuffer) Clear() {
	rb.tail.Store(rb.head.Load())
}
