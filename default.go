package smalloc

import (
	"sync"
	"unsafe"
)

var (
	defaultOnce      sync.Once
	defaultAllocator *Locked
)

// Default returns the process-wide allocator, creating it with default
// options on first use. It is safe for concurrent use and is never closed.
func Default() *Locked {
	defaultOnce.Do(func() {
		a, err := New()
		if err != nil {
			// Default options are always valid.
			panic(err)
		}
		defaultAllocator = NewLocked(a)
	})
	return defaultAllocator
}

// Malloc allocates size bytes from the default allocator.
func Malloc(size int) (unsafe.Pointer, error) {
	return Default().Allocate(size)
}

// Free releases memory obtained from Malloc. Freeing nil is a no-op.
func Free(p unsafe.Pointer, size int) error {
	if p == nil {
		return nil
	}
	return Default().Deallocate(p, size)
}
