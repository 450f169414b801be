package trace

import (
	"bytes"
	"fmt"
	"io"
)

// Header describes a trace.
type Header struct {
	Version     uint8
	Compression Compression
}

// Reader decodes events from a trace.
type Reader struct {
	r      io.Reader
	header Header
	block  []byte
	pos    int
}

// NewReader reads and validates the trace header.
func NewReader(r io.Reader) (*Reader, error) {
	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidTrace, err)
	}
	if !bytes.Equal(hdr[:4], []byte(magic)) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidTrace, hdr[:4])
	}
	if hdr[4] != version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr[4])
	}
	c := Compression(hdr[5])
	if c > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidTrace, hdr[5])
	}

	return &Reader{
		r:      r,
		header: Header{Version: hdr[4], Compression: c},
	}, nil
}

// Header returns the trace header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next event, or io.EOF at the end of the trace.
func (r *Reader) Next() (Event, error) {
	for r.pos >= len(r.block) {
		block, err := readBlock(r.r, r.header.Compression, r.block[:0])
		if err != nil {
			return Event{}, err
		}
		r.block = block
		r.pos = 0
	}

	e, n, err := decodeEvent(r.block[r.pos:])
	if err != nil {
		return Event{}, err
	}
	r.pos += n
	return e, nil
}

// ReadAll returns every remaining event.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}
