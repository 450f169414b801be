package trace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidTrace is returned for malformed trace data.
	ErrInvalidTrace = errors.New("trace: invalid trace")
	// ErrUnsupportedVersion is returned for traces written by a newer format.
	ErrUnsupportedVersion = errors.New("trace: unsupported version")
	// ErrUnknownID is returned when a Free event names no live allocation.
	ErrUnknownID = errors.New("trace: unknown allocation id")
	// ErrDuplicateID is returned when an Alloc event reuses a live ID.
	ErrDuplicateID = errors.New("trace: duplicate allocation id")
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("trace: writer closed")
)

// Op is an event kind.
type Op uint8

const (
	// OpAlloc allocates Size bytes under ID.
	OpAlloc Op = 1
	// OpFree releases the allocation with ID.
	OpFree Op = 2
)

func (o Op) String() string {
	switch o {
	case OpAlloc:
		return "alloc"
	case OpFree:
		return "free"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Event is one trace record.
type Event struct {
	Op   Op
	ID   uint64
	Size int
}

const maxEventSize = 1 + 2*binary.MaxVarintLen64

func appendEvent(dst []byte, e Event) []byte {
	dst = append(dst, byte(e.Op))
	dst = binary.AppendUvarint(dst, e.ID)
	return binary.AppendUvarint(dst, uint64(e.Size)) //nolint:gosec // Size validated non-negative by Writer
}

func decodeEvent(b []byte) (Event, int, error) {
	if len(b) == 0 {
		return Event{}, 0, fmt.Errorf("%w: empty event", ErrInvalidTrace)
	}

	e := Event{Op: Op(b[0])}
	if e.Op != OpAlloc && e.Op != OpFree {
		return Event{}, 0, fmt.Errorf("%w: unknown op %d", ErrInvalidTrace, b[0])
	}
	n := 1

	id, m := binary.Uvarint(b[n:])
	if m <= 0 {
		return Event{}, 0, fmt.Errorf("%w: bad id varint", ErrInvalidTrace)
	}
	e.ID = id
	n += m

	size, m := binary.Uvarint(b[n:])
	if m <= 0 || size > math.MaxInt {
		return Event{}, 0, fmt.Errorf("%w: bad size varint", ErrInvalidTrace)
	}
	e.Size = int(size) //nolint:gosec // bounded above
	n += m

	return e, n, nil
}
