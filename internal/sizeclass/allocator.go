package sizeclass

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/blockpool"
	"github.com/hupe1980/smalloc/internal/conv"
)

const unset = -1

type slot struct {
	pool   blockpool.Pool
	parked bool
}

type indexEntry struct {
	base uintptr
	slot int
}

func lessEntry(a, b indexEntry) bool {
	return a.base < b.base
}

// Allocator serves allocations of one block size from a growing set of pools.
// It is not safe for concurrent use.
type Allocator struct {
	src       backing.Source
	blockSize int
	blocks    int

	slots     []slot
	index     *btree.BTreeG[indexEntry]
	degree    int
	freePools []int
	numFull   int

	allocPool   int
	deallocPool int

	live     *roaring.Bitmap
	observer Observer
	closed   bool
}

// New creates an allocator for blocks of blockSize bytes, blocks per pool.
func New(src backing.Source, blockSize, blocks int, optFns ...Option) (*Allocator, error) {
	if err := blockpool.ValidateGeometry(blockSize, blocks); err != nil {
		return nil, err
	}
	if src == nil {
		src = backing.NewHeap()
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Allocator{
		src:         src,
		blockSize:   blockSize,
		blocks:      blocks,
		index:       btree.NewG(opts.degree, lessEntry),
		degree:      opts.degree,
		allocPool:   unset,
		deallocPool: unset,
		observer:    opts.observer,
	}
	if opts.liveTracking {
		a.live = roaring.New()
	}
	return a, nil
}

// BlockSize returns the size of every block served by a.
func (a *Allocator) BlockSize() int { return a.blockSize }

// BlocksPerPool returns the capacity of each pool.
func (a *Allocator) BlocksPerPool() int { return a.blocks }

// IndexDegree returns the degree of the reverse-index B-tree.
func (a *Allocator) IndexDegree() int { return a.degree }

// Allocate returns a pointer to an unused block.
func (a *Allocator) Allocate() (unsafe.Pointer, error) {
	if a.closed {
		return nil, ErrClosed
	}

	if a.allocPool == unset || a.slots[a.allocPool].pool.Available() == 0 {
		if err := a.selectAllocPool(); err != nil {
			return nil, err
		}
	}

	s := &a.slots[a.allocPool]
	ptr := s.pool.Allocate(a.blockSize)

	if a.live != nil {
		idx, _ := s.pool.IndexOf(uintptr(ptr), a.blockSize)
		bid, err := a.blockID(a.allocPool, idx)
		if err != nil {
			_ = s.pool.Deallocate(ptr, a.blockSize)
			return nil, err
		}
		a.live.Add(bid)
	}

	if s.pool.Available() == 0 {
		a.numFull++
	}
	return ptr, nil
}

func (a *Allocator) selectAllocPool() error {
	if n := len(a.freePools); n > 0 {
		id := a.freePools[n-1]
		a.freePools = a.freePools[:n-1]

		s := &a.slots[id]
		s.parked = false
		a.index.ReplaceOrInsert(indexEntry{base: s.pool.Base(), slot: id})
		a.allocPool = id

		a.observer.PoolReused(a.blockSize, s.pool.Base())
		return nil
	}

	if a.index.Len() == a.numFull {
		return a.grow()
	}

	found := unset
	a.index.Ascend(func(e indexEntry) bool {
		if a.slots[e.slot].pool.Available() > 0 {
			found = e.slot
			return false
		}
		return true
	})
	if found == unset {
		// numFull disagrees with the pools; recover by growing.
		return a.grow()
	}
	a.allocPool = found
	return nil
}

func (a *Allocator) grow() error {
	var p blockpool.Pool
	if err := p.Init(a.src, a.blockSize, a.blocks); err != nil {
		return fmt.Errorf("sizeclass: create pool of %d x %d bytes: %w", a.blocks, a.blockSize, err)
	}

	id := len(a.slots)
	a.slots = append(a.slots, slot{pool: p})
	a.index.ReplaceOrInsert(indexEntry{base: p.Base(), slot: id})

	a.allocPool = id
	if a.deallocPool == unset {
		a.deallocPool = id
	}

	a.observer.PoolCreated(a.blockSize, p.Base(), p.Len())
	return nil
}

// Deallocate returns the block at ptr to its pool.
func (a *Allocator) Deallocate(ptr unsafe.Pointer) error {
	if a.closed {
		return ErrClosed
	}

	addr := uintptr(ptr)
	id, ok := a.resolve(addr)
	if !ok {
		return fmt.Errorf("%w: %#x (block size %d)", ErrNotOwned, addr, a.blockSize)
	}

	s := &a.slots[id]
	idx, aligned := s.pool.IndexOf(addr, a.blockSize)
	if !aligned {
		return fmt.Errorf("%w: %#x (block size %d)", ErrMisaligned, addr, a.blockSize)
	}

	var bid uint32
	if a.live != nil {
		var err error
		if bid, err = a.blockID(id, idx); err != nil {
			return err
		}
		if !a.live.Contains(bid) {
			return fmt.Errorf("%w: %#x (block size %d)", ErrDoubleFree, addr, a.blockSize)
		}
	}

	wasFull := s.pool.Available() == 0
	if err := s.pool.Deallocate(ptr, a.blockSize); err != nil {
		return fmt.Errorf("%w: %w", ErrNotOwned, err)
	}
	if a.live != nil {
		a.live.Remove(bid)
	}
	if wasFull {
		a.numFull--
	}

	if s.pool.Available() == a.blocks {
		a.park(id)
		return nil
	}

	a.deallocPool = id
	return nil
}

func (a *Allocator) park(id int) {
	s := &a.slots[id]
	a.index.Delete(indexEntry{base: s.pool.Base()})
	s.parked = true
	a.freePools = append(a.freePools, id)

	if a.allocPool == id {
		a.allocPool = unset
	}
	if a.deallocPool == id {
		a.deallocPool = unset
		if e, ok := a.index.Min(); ok {
			a.deallocPool = e.slot
		}
	}

	a.observer.PoolEmptied(a.blockSize, s.pool.Base())
}

func (a *Allocator) resolve(addr uintptr) (int, bool) {
	if d := a.deallocPool; d != unset && a.slots[d].pool.Contains(addr) {
		return d, true
	}

	found := unset
	a.index.DescendLessOrEqual(indexEntry{base: addr}, func(e indexEntry) bool {
		found = e.slot
		return false
	})
	if found == unset || !a.slots[found].pool.Contains(addr) {
		return unset, false
	}
	return found, true
}

// Owns reports whether ptr lies inside a registered pool of a.
func (a *Allocator) Owns(ptr unsafe.Pointer) bool {
	if a.closed {
		return false
	}
	_, ok := a.resolve(uintptr(ptr))
	return ok
}

// blockID numbers block idx of pool id for the live and free bitmaps.
func (a *Allocator) blockID(id, idx int) (uint32, error) {
	bid, err := conv.IntToUint32(id*a.blocks + idx)
	if err != nil {
		return 0, fmt.Errorf("%w: pool %d block %d: %w", ErrTrackingOverflow, id, idx, err)
	}
	return bid, nil
}

// Close releases every pool. It returns ErrLeaked if blocks are outstanding;
// the storage is released either way.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if outstanding := a.outstanding(); outstanding > 0 {
		errs = append(errs, fmt.Errorf("%w: %d blocks of %d bytes", ErrLeaked, outstanding, a.blockSize))
	}

	for i := range a.slots {
		if err := a.slots[i].pool.Release(a.src); err != nil {
			errs = append(errs, err)
		}
	}

	a.slots = nil
	a.freePools = nil
	a.index.Clear(false)
	a.numFull = 0
	a.allocPool, a.deallocPool = unset, unset
	if a.live != nil {
		a.live.Clear()
	}

	return errors.Join(errs...)
}

func (a *Allocator) outstanding() int {
	n := 0
	for i := range a.slots {
		n += a.blocks - a.slots[i].pool.Available()
	}
	return n
}
