// Package ringbuffer implements a lock-free single-producer/
// single-consumer byte ring buffer, the Go equivalent of JACK's
// jack_ringbuffer as used by fsp_player.c: one decoder goroutine
// writes, one sink-callback goroutine reads, and the only
// synchronization between them is the pair of atomic cursors here —
// no mutex is taken on the hot audio path.
package ringbuffer

import (
	"github.com/nkossifidis/audioscheduler/internal/logging"
	"golang.org/x/sys/unix"

	"sync/atomic"
)

var log = logging.For(logging.Plr)

// Default sizing: 4 seconds of 48kHz, 2-channel, 4-byte (float32)
// frames — fsp_player.c's FSP_RING_BUFFER_SECONDS * sample rate *
// channels * sizeof(float).
const (
	DefaultSeconds    = 4
	DefaultSampleRate = 48000
	DefaultChannels   = 2
	DefaultSampleSize = 4
	DefaultSize       = DefaultSeconds * DefaultSampleRate * DefaultChannels * DefaultSampleSize
)

// Buffer is a fixed-capacity SPSC byte ring. Capacity is rounded up
// internally to a power of two so index wraparound can use a bitmask
// instead of a modulo.
type Buffer struct {
	buf      []byte
	mask     uint64
	readPos  atomic.Uint64
	writePos atomic.Uint64
	locked   bool
}

// New allocates a ring buffer of at least size bytes and attempts to
// mlock its backing array so the audio path never takes a page fault
// (fsp_player.c calls jack_ringbuffer_mlock for the same reason).
// Failure to lock memory is logged but not fatal — it typically means
// the process lacks CAP_IPC_LOCK or is over RLIMIT_MEMLOCK.
func New(size int) *Buffer {
	capacity := nextPowerOfTwo(size)
	b := &Buffer{
		buf:  make([]byte, capacity),
		mask: uint64(capacity - 1),
	}
	if err := unix.Mlock(b.buf); err != nil {
		log.Warnf("mlock ring buffer failed (%d bytes): %v", capacity, err)
	} else {
		b.locked = true
	}
	return b
}

// Close unlocks the backing memory, if it was locked.
func (b *Buffer) Close() error {
	if !b.locked {
		return nil
	}
	b.locked = false
	return unix.Munlock(b.buf)
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// WriteSpace returns the number of bytes currently free for writing.
func (b *Buffer) WriteSpace() int {
	w := b.writePos.Load()
	r := b.readPos.Load()
	return len(b.buf) - int(w-r)
}

// ReadSpace returns the number of bytes currently available to read.
func (b *Buffer) ReadSpace() int {
	w := b.writePos.Load()
	r := b.readPos.Load()
	return int(w - r)
}

// Write copies as much of p as fits into free space and returns the
// number of bytes written. Only the producer goroutine may call this.
func (b *Buffer) Write(p []byte) int {
	space := b.WriteSpace()
	n := len(p)
	if n > space {
		n = space
	}
	if n == 0 {
		return 0
	}

	w := b.writePos.Load()
	start := int(w & b.mask)
	end := start + n
	if end <= len(b.buf) {
		copy(b.buf[start:end], p[:n])
	} else {
		first := len(b.buf) - start
		copy(b.buf[start:], p[:first])
		copy(b.buf[:end-len(b.buf)], p[first:n])
	}

	b.writePos.Store(w + uint64(n))
	return n
}

// Read copies as many available bytes as fit into p and returns the
// number of bytes read. Only the consumer goroutine may call this.
func (b *Buffer) Read(p []byte) int {
	avail := b.ReadSpace()
	n := len(p)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	r := b.readPos.Load()
	start := int(r & b.mask)
	end := start + n
	if end <= len(b.buf) {
		copy(p[:n], b.buf[start:end])
	} else {
		first := len(b.buf) - start
		copy(p[:first], b.buf[start:])
		copy(p[first:n], b.buf[:end-len(b.buf)])
	}

	b.readPos.Store(r + uint64(n))
	return n
}

// Reset drops all buffered data, so the next read starts from an empty
// buffer.
func (b *Buffer) Reset() {
	b.readPos.Store(b.writePos.Load())
}

// Cap returns the buffer's actual (power-of-two-rounded) capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}
