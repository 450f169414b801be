package trace

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	magic          = "SMTR"
	version        = 1
	fileHeaderSize = 8

	defaultBlockSize = 64 * 1024
)

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	compression Compression
	blockSize   int
}

// WithCompression sets the block compression. Default is LZ4.
func WithCompression(c Compression) WriterOption {
	return func(o *writerOptions) {
		o.compression = c
	}
}

// WithBlockSize sets the uncompressed size at which a block is flushed.
// Sizes that would let a block outgrow the reader's limit are ignored.
func WithBlockSize(n int) WriterOption {
	return func(o *writerOptions) {
		if n > 0 && n <= maxBlockSize-maxEventSize {
			o.blockSize = n
		}
	}
}

// Writer encodes events into compressed blocks.
type Writer struct {
	w           io.Writer
	compression Compression
	blockSize   int

	buf     []byte
	out     []byte
	events  int64
	written int64
	closed  bool
}

// NewWriter writes the trace header to w and returns a Writer.
func NewWriter(w io.Writer, optFns ...WriterOption) (*Writer, error) {
	opts := writerOptions{
		compression: CompressionLZ4,
		blockSize:   defaultBlockSize,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidTrace, opts.compression)
	}

	var hdr [fileHeaderSize]byte
	copy(hdr[:], magic)
	hdr[4] = version
	hdr[5] = byte(opts.compression)
	binary.LittleEndian.PutUint16(hdr[6:], 0)

	n, err := w.Write(hdr[:])
	if err != nil {
		return nil, err
	}

	return &Writer{
		w:           w,
		compression: opts.compression,
		blockSize:   opts.blockSize,
		buf:         make([]byte, 0, opts.blockSize+maxEventSize),
		written:     int64(n),
	}, nil
}

// Write appends an event, flushing a block when the buffer is full.
func (w *Writer) Write(e Event) error {
	if w.closed {
		return ErrClosed
	}
	if e.Op != OpAlloc && e.Op != OpFree {
		return fmt.Errorf("%w: unknown op %d", ErrInvalidTrace, e.Op)
	}
	if e.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidTrace, e.Size)
	}

	w.buf = appendEvent(w.buf, e)
	w.events++

	if len(w.buf) >= w.blockSize {
		return w.Flush()
	}
	return nil
}

// Flush writes buffered events as one block.
func (w *Writer) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	out, err := appendBlock(w.out[:0], w.buf, w.compression)
	if err != nil {
		return err
	}
	w.out = out

	n, err := w.w.Write(out)
	w.written += int64(n)
	if err != nil {
		return err
	}
	w.buf = w.buf[:0]
	return nil
}

// Close flushes buffered events. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	err := w.Flush()
	w.closed = true
	return err
}

// Events returns the number of events written.
func (w *Writer) Events() int64 {
	return w.events
}

// BytesWritten returns the number of bytes written to the underlying writer.
func (w *Writer) BytesWritten() int64 {
	return w.written
}
