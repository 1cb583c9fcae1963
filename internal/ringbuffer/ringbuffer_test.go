package ringbuffer

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextPowerOfTwo(t *testing.T) {
	require.Equal(t, 1, nextPowerOfTwo(0))
	require.Equal(t, 1, nextPowerOfTwo(1))
	require.Equal(t, 4, nextPowerOfTwo(3))
	require.Equal(t, 1024, nextPowerOfTwo(1024))
	require.Equal(t, 2048, nextPowerOfTwo(1025))
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(16)
	in := []byte{1, 2, 3, 4, 5}
	n := b.Write(in)
	require.Equal(t, 5, n)

	out := make([]byte, 5)
	n = b.Read(out)
	require.Equal(t, 5, n)
	require.Equal(t, in, out)
}

func TestWriteTruncatesAtCapacity(t *testing.T) {
	b := New(4)
	in := make([]byte, 100)
	n := b.Write(in)
	require.Equal(t, b.Cap(), n)
	require.Equal(t, 0, b.WriteSpace())
}

func TestReadTruncatesAtAvailable(t *testing.T) {
	b := New(16)
	b.Write([]byte{9, 9, 9})
	out := make([]byte, 100)
	n := b.Read(out)
	require.Equal(t, 3, n)
}

func TestWrapAround(t *testing.T) {
	b := New(8)
	b.Write([]byte{1, 2, 3, 4, 5, 6})
	out := make([]byte, 6)
	b.Read(out)

	in := []byte{7, 8, 9, 10, 11, 12}
	n := b.Write(in)
	require.Equal(t, 6, n)

	got := make([]byte, 6)
	n = b.Read(got)
	require.Equal(t, 6, n)
	require.Equal(t, in, got)
}

func TestResetDropsBufferedData(t *testing.T) {
	b := New(16)
	b.Write([]byte{1, 2, 3})
	b.Reset()
	require.Equal(t, 0, b.ReadSpace())
	require.Equal(t, b.Cap(), b.WriteSpace())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	b := New(256)
	total := 100000
	src := make([]byte, total)
	rand.New(rand.NewSource(1)).Read(src)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		off := 0
		for off < total {
			n := b.Write(src[off:])
			off += n
		}
	}()

	got := make([]byte, 0, total)
	go func() {
		defer wg.Done()
		buf := make([]byte, 64)
		for len(got) < total {
			n := b.Read(buf)
			got = append(got, buf[:n]...)
		}
	}()

	wg.Wait()
	require.True(t, bytes.Equal(src, got))
}
