package backing

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/hupe1980/smalloc/resource"
)

// Limited charges every allocation of an underlying Source against a
// resource.Controller memory budget. Several allocator instances may share
// one Limited source.
//
// Limited remembers the size of every buffer it hands out, so a Free with a
// different length is rejected before the budget is touched.
type Limited struct {
	src Source
	rc  *resource.Controller

	mu    sync.Mutex
	sizes map[uintptr]int
}

// NewLimited wraps src with the memory budget of rc.
// A nil controller disables limiting.
func NewLimited(src Source, rc *resource.Controller) *Limited {
	return &Limited{
		src:   src,
		rc:    rc,
		sizes: make(map[uintptr]int),
	}
}

func baseOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// Alloc implements Source. It never waits for budget to become available.
func (l *Limited) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if err := l.rc.TryAcquireMemory(int64(size)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	buf, err := l.src.Alloc(size)
	if err != nil {
		l.rc.ReleaseMemory(int64(size))
		return nil, err
	}

	l.mu.Lock()
	l.sizes[baseOf(buf)] = size
	l.mu.Unlock()
	return buf, nil
}

// Free implements Source.
func (l *Limited) Free(buf []byte) error {
	if len(buf) == 0 {
		return ErrUnknownRegion
	}
	base := baseOf(buf)

	l.mu.Lock()
	size, ok := l.sizes[base]
	l.mu.Unlock()
	switch {
	case !ok:
		return fmt.Errorf("%w: %#x", ErrUnknownRegion, base)
	case size != len(buf):
		return fmt.Errorf("%w: %#x allocated with %d bytes, freed with %d", ErrUnknownRegion, base, size, len(buf))
	}

	if err := l.src.Free(buf); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.sizes, base)
	l.mu.Unlock()
	l.rc.ReleaseMemory(int64(size))
	return nil
}

// Outstanding returns the number of buffers handed out and not yet freed.
func (l *Limited) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sizes)
}

// Unwrap returns the wrapped Source.
func (l *Limited) Unwrap() Source {
	return l.src
}
