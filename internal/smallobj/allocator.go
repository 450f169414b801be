package smallobj

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"unsafe"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/blockpool"
	"github.com/hupe1980/smalloc/internal/sizeclass"
)

const (
	// DefaultPoolBytes is the storage budget per pool.
	DefaultPoolBytes = 4096
	// DefaultMaxObjectSize is the largest size served by a size class.
	DefaultMaxObjectSize = 64
)

var (
	// ErrInvalidSize is returned for negative sizes.
	ErrInvalidSize = errors.New("smallobj: invalid size")
	// ErrUnknownSizeClass is returned when freeing a size that was never allocated.
	ErrUnknownSizeClass = errors.New("smallobj: unknown size class")
	// ErrUnknownObject is returned when freeing an unknown large object or one
	// with a different size than it was allocated with.
	ErrUnknownObject = errors.New("smallobj: unknown large object")
)

// zeroBase is the address returned for zero-size allocations.
var zeroBase uint64

// Config configures an Allocator.
type Config struct {
	// PoolBytes is the target storage size of one pool. Each size class holds
	// PoolBytes/size blocks per pool, clamped to 1..255.
	PoolBytes int
	// MaxObjectSize is the largest size served by a size class.
	MaxObjectSize int
	// Source supplies pool storage and large objects. Defaults to the Go heap.
	Source backing.Source
	// Observer receives pool lifecycle events from every size class.
	Observer sizeclass.Observer
	// LiveTracking enables double-free detection.
	LiveTracking bool
	// IndexDegree is the B-tree degree of each size class's address index.
	// Zero keeps the size class default.
	IndexDegree int
}

func (c *Config) setDefaults() {
	if c.PoolBytes == 0 {
		c.PoolBytes = DefaultPoolBytes
	}
	if c.MaxObjectSize == 0 {
		c.MaxObjectSize = DefaultMaxObjectSize
	}
	if c.Source == nil {
		c.Source = backing.NewHeap()
	}
}

// Allocator is a small-object allocator. It is not safe for concurrent use.
type Allocator struct {
	cfg Config

	classes     []*sizeclass.Allocator
	lastAlloc   *sizeclass.Allocator
	lastDealloc *sizeclass.Allocator

	large      map[uintptr][]byte
	largeBytes int
	closed     bool
}

// New creates an Allocator.
func New(cfg Config) (*Allocator, error) {
	if cfg.PoolBytes < 0 || cfg.MaxObjectSize < 0 {
		return nil, fmt.Errorf("%w: pool bytes %d, max object size %d", ErrInvalidSize, cfg.PoolBytes, cfg.MaxObjectSize)
	}
	cfg.setDefaults()

	return &Allocator{
		cfg:   cfg,
		large: make(map[uintptr][]byte),
	}, nil
}

// MaxObjectSize returns the largest size served by a size class.
func (a *Allocator) MaxObjectSize() int { return a.cfg.MaxObjectSize }

// PoolBytes returns the per-pool storage budget.
func (a *Allocator) PoolBytes() int { return a.cfg.PoolBytes }

// BlocksPerPool returns the pool capacity used for blocks of size bytes.
func (a *Allocator) BlocksPerPool(size int) int {
	return min(max(a.cfg.PoolBytes/size, 1), blockpool.MaxBlocks)
}

// Allocate returns size bytes of storage.
func (a *Allocator) Allocate(size int) (unsafe.Pointer, error) {
	switch {
	case a.closed:
		return nil, sizeclass.ErrClosed
	case size < 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	case size == 0:
		return unsafe.Pointer(&zeroBase), nil
	case size > a.cfg.MaxObjectSize:
		return a.allocLarge(size)
	}

	c := a.lastAlloc
	if c == nil || c.BlockSize() != size {
		var err error
		if c, err = a.classFor(size); err != nil {
			return nil, err
		}
		a.lastAlloc = c
	}
	return c.Allocate()
}

// Deallocate frees storage returned by Allocate with the same size.
// Freeing nil or a zero-size allocation is a no-op.
func (a *Allocator) Deallocate(p unsafe.Pointer, size int) error {
	switch {
	case a.closed:
		return sizeclass.ErrClosed
	case p == nil || size == 0:
		return nil
	case size < 0:
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	case size > a.cfg.MaxObjectSize:
		return a.freeLarge(p, size)
	}

	c := a.lastDealloc
	if c == nil || c.BlockSize() != size {
		i, ok := a.search(size)
		if !ok {
			return fmt.Errorf("%w: %d bytes", ErrUnknownSizeClass, size)
		}
		c = a.classes[i]
		a.lastDealloc = c
	}
	return c.Deallocate(p)
}

func (a *Allocator) search(size int) (int, bool) {
	return slices.BinarySearchFunc(a.classes, size, func(c *sizeclass.Allocator, size int) int {
		return cmp.Compare(c.BlockSize(), size)
	})
}

func (a *Allocator) classFor(size int) (*sizeclass.Allocator, error) {
	i, ok := a.search(size)
	if ok {
		return a.classes[i], nil
	}

	opts := []sizeclass.Option{sizeclass.WithLiveTracking(a.cfg.LiveTracking)}
	if a.cfg.IndexDegree > 0 {
		opts = append(opts, sizeclass.WithIndexDegree(a.cfg.IndexDegree))
	}
	if a.cfg.Observer != nil {
		opts = append(opts, sizeclass.WithObserver(a.cfg.Observer))
	}
	c, err := sizeclass.New(a.cfg.Source, size, a.BlocksPerPool(size), opts...)
	if err != nil {
		return nil, err
	}
	a.classes = slices.Insert(a.classes, i, c)
	return c, nil
}

func (a *Allocator) allocLarge(size int) (unsafe.Pointer, error) {
	buf, err := a.cfg.Source.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("smallobj: allocate %d bytes: %w", size, err)
	}
	p := unsafe.Pointer(unsafe.SliceData(buf)) //nolint:gosec // buf has len size > 0

	a.large[uintptr(p)] = buf
	a.largeBytes += size
	return p, nil
}

// freeLarge returns a large object to the source. The object stays tracked
// if the source rejects it.
func (a *Allocator) freeLarge(p unsafe.Pointer, size int) error {
	buf, ok := a.large[uintptr(p)]
	if !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownObject, uintptr(p))
	}
	if len(buf) != size {
		return fmt.Errorf("%w: %#x allocated with %d bytes, freed with %d", ErrUnknownObject, uintptr(p), len(buf), size)
	}

	if err := a.cfg.Source.Free(buf); err != nil {
		return fmt.Errorf("smallobj: free %d bytes: %w", size, err)
	}
	delete(a.large, uintptr(p))
	a.largeBytes -= size
	return nil
}

// Owns reports whether p lies inside a pool of any size class.
func (a *Allocator) Owns(p unsafe.Pointer) bool {
	for _, c := range a.classes {
		if c.Owns(p) {
			return true
		}
	}
	return false
}

// Classes calls fn for every size class in ascending block size order.
func (a *Allocator) Classes(fn func(*sizeclass.Allocator)) {
	for _, c := range a.classes {
		fn(c)
	}
}

// Close releases every size class and returns outstanding large objects to
// the source. Outstanding blocks and large objects are reported as
// sizeclass.ErrLeaked; their memory is reclaimed either way.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for _, c := range a.classes {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n := len(a.large); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d large objects (%d bytes)", sizeclass.ErrLeaked, n, a.largeBytes))
		for _, buf := range a.large {
			if err := a.cfg.Source.Free(buf); err != nil {
				errs = append(errs, fmt.Errorf("smallobj: free %d bytes: %w", len(buf), err))
			}
		}
		clear(a.large)
		a.largeBytes = 0
	}

	a.classes = nil
	a.lastAlloc, a.lastDealloc = nil, nil
	return errors.Join(errs...)
}
