package backing

import (
	"errors"
	"fmt"
	"math"
)

// MaxHeapAlloc is the largest request Heap attempts. Larger requests fail
// with ErrOutOfMemory instead of reaching the runtime, which panics or aborts
// on sizes it cannot represent or map.
const MaxHeapAlloc = min(math.MaxInt, 1<<40)

var (
	// ErrOutOfMemory is returned when a Source cannot satisfy a request.
	ErrOutOfMemory = errors.New("backing: out of memory")
	// ErrUnknownRegion is returned by Free for a buffer the Source did not hand out.
	ErrUnknownRegion = errors.New("backing: unknown region")
	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = errors.New("backing: invalid size")
)

// Source is the minimal contract of a privileged backing allocator.
//
// Alloc returns exactly size zeroed bytes. Free receives a buffer previously
// returned by Alloc with the same length; callers may rebuild that buffer from
// a pointer and the size they passed to Alloc.
type Source interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte) error
}

// Heap allocates storage from the Go heap.
// The zero value is ready to use and safe for concurrent use.
type Heap struct{}

// NewHeap returns a heap-backed Source.
func NewHeap() *Heap {
	return &Heap{}
}

// Alloc implements Source.
func (*Heap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if size > MaxHeapAlloc {
		return nil, fmt.Errorf("%w: %d bytes exceeds heap limit of %d", ErrOutOfMemory, size, MaxHeapAlloc)
	}
	return make([]byte, size), nil
}

// Free implements Source. The garbage collector reclaims the buffer once the
// last reference is gone.
func (*Heap) Free(buf []byte) error {
	if len(buf) == 0 {
		return ErrUnknownRegion
	}
	return nil
}
