package trace

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"unsafe"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/smallobj"
	"github.com/hupe1980/smalloc/resource"
)

// heapAllocator serves allocations from the Go heap and tracks them.
type heapAllocator struct {
	live map[uintptr][]byte
}

func newHeapAllocator() *heapAllocator {
	return &heapAllocator{live: make(map[uintptr][]byte)}
}

var zero byte

func (h *heapAllocator) Allocate(size int) (unsafe.Pointer, error) {
	if size == 0 {
		return unsafe.Pointer(&zero), nil
	}
	b := make([]byte, size)
	p := unsafe.Pointer(&b[0])
	h.live[uintptr(p)] = b
	return p, nil
}

func (h *heapAllocator) Deallocate(p unsafe.Pointer, size int) error {
	if size == 0 {
		return nil
	}
	b, ok := h.live[uintptr(p)]
	if !ok || len(b) != size {
		return ErrUnknownID
	}
	delete(h.live, uintptr(p))
	return nil
}

func workload(n int) []Event {
	events := make([]Event, 0, 2*n)
	for i := 0; i < n; i++ {
		events = append(events, Event{Op: OpAlloc, ID: uint64(i), Size: 8 + i%56})
		if i%3 == 2 {
			events = append(events, Event{Op: OpFree, ID: uint64(i - 1), Size: 8 + (i-1)%56})
		}
	}
	return events
}

func writeTrace(t *testing.T, events []Event, opts ...WriterOption) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts...)
	require.NoError(t, err)
	for _, e := range events {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, int64(len(events)), w.Events())
	assert.Equal(t, int64(buf.Len()), w.BytesWritten())
	return &buf
}

func TestWriterReader(t *testing.T) {
	events := workload(5000)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			buf := writeTrace(t, events, WithCompression(c), WithBlockSize(1024))

			r, err := NewReader(buf)
			require.NoError(t, err)
			assert.Equal(t, c, r.Header().Compression)

			got, err := r.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, events, got)

			_, err = r.Next()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestCompressionShrinksRepetitiveTraces(t *testing.T) {
	events := make([]Event, 0, 10000)
	for i := 0; i < 10000; i++ {
		events = append(events, Event{Op: OpAlloc, ID: 1, Size: 16})
	}

	raw := writeTrace(t, events, WithCompression(CompressionNone))
	lz := writeTrace(t, events, WithCompression(CompressionLZ4))
	zs := writeTrace(t, events, WithCompression(CompressionZSTD))

	assert.Less(t, lz.Len(), raw.Len()/4)
	assert.Less(t, zs.Len(), raw.Len()/4)
}

func TestNewReader_Invalid(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("SMT")))
	assert.ErrorIs(t, err, ErrInvalidTrace)

	_, err = NewReader(bytes.NewReader([]byte("XXXX\x01\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrInvalidTrace)

	_, err = NewReader(bytes.NewReader([]byte("SMTR\x09\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = NewReader(bytes.NewReader([]byte("SMTR\x01\x07\x00\x00")))
	assert.ErrorIs(t, err, ErrInvalidTrace)
}

func TestReader_Truncated(t *testing.T) {
	buf := writeTrace(t, workload(100), WithCompression(CompressionNone))
	data := buf.Bytes()

	r, err := NewReader(bytes.NewReader(data[:len(data)-3]))
	require.NoError(t, err)
	_, err = r.ReadAll()
	assert.ErrorIs(t, err, ErrInvalidTrace)
}

func TestWriter_Validation(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Write(Event{Op: 9}), ErrInvalidTrace)
	assert.ErrorIs(t, w.Write(Event{Op: OpAlloc, Size: -1}), ErrInvalidTrace)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(Event{Op: OpAlloc, Size: 1}), ErrClosed)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)

	_, err = ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrInvalidTrace)
}

func TestRecorderReplay(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WithCompression(CompressionZSTD))
	require.NoError(t, err)

	rec := NewRecorder(newHeapAllocator(), w)
	var ptrs []unsafe.Pointer
	for i := 1; i <= 100; i++ {
		p, err := rec.Allocate(i)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	_, err = rec.Allocate(0)
	require.NoError(t, err)
	for i, p := range ptrs[:60] {
		require.NoError(t, rec.Deallocate(p, i+1))
	}
	assert.Equal(t, 40, rec.Live())
	require.NoError(t, rec.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)

	target := newHeapAllocator()
	res, err := Replay(context.Background(), r, target)
	require.NoError(t, err)

	assert.Equal(t, int64(161), res.Events)
	assert.Equal(t, int64(101), res.Allocs)
	assert.Equal(t, int64(60), res.Frees)
	assert.Equal(t, int64(40), res.Leaked)
	assert.Equal(t, int64(100), res.PeakLive)
	assert.Equal(t, int64(5050), res.PeakBytes)
	assert.Empty(t, target.live)
}

func TestReplay_Errors(t *testing.T) {
	t.Run("UnknownID", func(t *testing.T) {
		buf := writeTrace(t, []Event{{Op: OpFree, ID: 4, Size: 8}})
		r, err := NewReader(buf)
		require.NoError(t, err)
		_, err = Replay(context.Background(), r, newHeapAllocator())
		assert.ErrorIs(t, err, ErrUnknownID)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		buf := writeTrace(t, []Event{{Op: OpAlloc, ID: 1, Size: 8}, {Op: OpAlloc, ID: 1, Size: 8}})
		r, err := NewReader(buf)
		require.NoError(t, err)
		_, err = Replay(context.Background(), r, newHeapAllocator())
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		buf := writeTrace(t, []Event{{Op: OpAlloc, ID: 1, Size: 8}, {Op: OpFree, ID: 1, Size: 16}})
		r, err := NewReader(buf)
		require.NoError(t, err)
		_, err = Replay(context.Background(), r, newHeapAllocator())
		assert.ErrorIs(t, err, ErrInvalidTrace)
	})

	t.Run("Canceled", func(t *testing.T) {
		buf := writeTrace(t, workload(10))
		r, err := NewReader(buf)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := Replay(ctx, r, newHeapAllocator())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, res.Events)
	})
}

func TestReplay_FreesLiveOnError(t *testing.T) {
	events := []Event{
		{Op: OpAlloc, ID: 1, Size: 16},
		{Op: OpAlloc, ID: 2, Size: 4096},
		{Op: OpFree, ID: 7, Size: 16},
	}

	t.Run("Heap", func(t *testing.T) {
		r, err := NewReader(writeTrace(t, events))
		require.NoError(t, err)

		target := newHeapAllocator()
		res, err := Replay(context.Background(), r, target)
		assert.ErrorIs(t, err, ErrUnknownID)
		assert.Equal(t, int64(2), res.Allocs)
		assert.Empty(t, target.live)
	})

	t.Run("SharedBudget", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
		a, err := smallobj.New(smallobj.Config{
			PoolBytes: 256,
			Source:    backing.NewLimited(backing.NewHeap(), rc),
		})
		require.NoError(t, err)

		r, err := NewReader(writeTrace(t, events))
		require.NoError(t, err)

		_, err = Replay(context.Background(), r, a)
		assert.ErrorIs(t, err, ErrUnknownID)

		// Only the parked pool stays charged until Close.
		assert.Equal(t, int64(256), rc.MemoryUsage())
		require.NoError(t, a.Verify())
		require.NoError(t, a.Close())
		assert.Equal(t, int64(0), rc.MemoryUsage())
	})
}

func TestReadBlock_ZstdExpansionLimited(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	packed := enc.EncodeAll(make([]byte, maxBlockSize+1), nil)
	require.NoError(t, enc.Close())

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], 1024)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(packed)))

	block := bytes.NewBuffer(hdr[:])
	block.Write(packed)

	_, err = readBlock(block, CompressionZSTD, nil)
	assert.ErrorIs(t, err, ErrInvalidTrace)
	assert.True(t, errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded), "got %v", err)
}

func TestAppendBlock_RejectsOversized(t *testing.T) {
	_, err := appendBlock(nil, make([]byte, maxBlockSize+1), CompressionNone)
	assert.ErrorIs(t, err, ErrInvalidTrace)
}

func TestWithBlockSize_Limit(t *testing.T) {
	var o writerOptions
	WithBlockSize(maxBlockSize)(&o)
	assert.Zero(t, o.blockSize)
	WithBlockSize(maxBlockSize - maxEventSize)(&o)
	assert.Equal(t, maxBlockSize-maxEventSize, o.blockSize)
}
