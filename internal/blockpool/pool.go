package blockpool

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/hupe1980/smalloc/internal/conv"
)

// MaxBlocks is the largest number of blocks a pool can hold with a one-byte link.
const MaxBlocks = math.MaxUint8

var (
	// ErrCapacityOverflow is returned when the block count does not fit the link width.
	ErrCapacityOverflow = errors.New("blockpool: capacity overflow")
	// ErrInvalidBlockSize is returned for block sizes smaller than one byte.
	ErrInvalidBlockSize = errors.New("blockpool: invalid block size")
	// ErrForeignBlock is returned when a freed pointer is not a block of the pool.
	ErrForeignBlock = errors.New("blockpool: block outside pool")
)

// Source supplies and reclaims pool storage.
type Source interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte) error
}

// Pool is a fixed-capacity array of blocks with an intrusive free list.
type Pool struct {
	data           []byte
	firstAvailable uint8
	available      uint8
}

// ValidateGeometry reports whether blockSize and blocks describe a valid pool.
func ValidateGeometry(blockSize, blocks int) error {
	if blockSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}
	if blocks < 1 {
		return fmt.Errorf("%w: %d blocks (want 1..%d)", ErrCapacityOverflow, blocks, MaxBlocks)
	}
	if _, err := conv.IntToUint8(blocks); err != nil {
		return fmt.Errorf("%w: %d blocks (want 1..%d): %w", ErrCapacityOverflow, blocks, MaxBlocks, err)
	}
	if _, err := conv.MulInt(blockSize, blocks); err != nil {
		return fmt.Errorf("%w: %w", ErrCapacityOverflow, err)
	}
	return nil
}

// Init obtains storage for blocks blocks of blockSize bytes from src and
// links every block into the free list.
func (p *Pool) Init(src Source, blockSize, blocks int) error {
	if err := ValidateGeometry(blockSize, blocks); err != nil {
		return err
	}

	data, err := src.Alloc(blockSize * blocks)
	if err != nil {
		return err
	}

	p.data = data
	return p.Reset(blockSize, blocks)
}

// Reset discards every allocation and rebuilds the free list.
func (p *Pool) Reset(blockSize, blocks int) error {
	n, err := conv.IntToUint8(blocks)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCapacityOverflow, err)
	}
	if size, err := conv.MulInt(blockSize, blocks); err != nil || blockSize < 1 || size > len(p.data) {
		return fmt.Errorf("%w: %d x %d bytes in a %d byte pool", ErrCapacityOverflow, blocks, blockSize, len(p.data))
	}

	p.firstAvailable = 0
	p.available = n
	for i := uint8(0); i < n; i++ {
		p.data[int(i)*blockSize] = i + 1
	}
	return nil
}

// Release returns the storage to src. The pool must not be used afterwards.
func (p *Pool) Release(src Source) error {
	if p.data == nil {
		return nil
	}
	err := src.Free(p.data)
	p.data = nil
	p.available = 0
	p.firstAvailable = 0
	return err
}

// Allocate pops the first unused block, or returns nil if the pool is full.
func (p *Pool) Allocate(blockSize int) unsafe.Pointer {
	if p.available == 0 {
		return nil
	}

	off := int(p.firstAvailable) * blockSize
	block := &p.data[off]

	p.firstAvailable = *block
	p.available--

	return unsafe.Pointer(block) //nolint:gosec // block lives inside p.data
}

// Deallocate pushes the block at ptr back onto the free list.
//
// ptr must have been returned by Allocate on this pool and not freed since.
// The size class validates ownership and alignment before calling; only
// pointers outside the pool's storage are rejected here.
func (p *Pool) Deallocate(ptr unsafe.Pointer, blockSize int) error {
	addr := uintptr(ptr)
	if !p.Contains(addr) {
		return fmt.Errorf("%w: %#x", ErrForeignBlock, addr)
	}
	i, _ := p.IndexOf(addr, blockSize)
	idx, err := conv.IntToUint8(i)
	if err != nil {
		return fmt.Errorf("%w: %#x: %w", ErrForeignBlock, addr, err)
	}

	*(*uint8)(ptr) = p.firstAvailable
	p.firstAvailable = idx
	p.available++
	return nil
}

// Base returns the address of the first block, or 0 for a released pool.
func (p *Pool) Base() uintptr {
	if len(p.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&p.data[0])) //nolint:gosec // address is used for range checks only
}

// Len returns the size of the pool's storage in bytes.
func (p *Pool) Len() int {
	return len(p.data)
}

// Available returns the number of unused blocks.
func (p *Pool) Available() int {
	return int(p.available)
}

// Contains reports whether addr lies inside the pool's storage.
func (p *Pool) Contains(addr uintptr) bool {
	base := p.Base()
	return base != 0 && addr >= base && addr < base+uintptr(len(p.data))
}

// IndexOf returns the block index of addr and whether addr is the start of a block.
// addr must be inside the pool.
func (p *Pool) IndexOf(addr uintptr, blockSize int) (int, bool) {
	off := addr - p.Base()
	return int(off / uintptr(blockSize)), off%uintptr(blockSize) == 0 //nolint:gosec // off < len(p.data)
}

// FreeIndices calls fn with every index on the free list, head first, stopping
// early if fn returns false. It visits at most Available() entries, so a
// corrupted list cannot loop forever.
func (p *Pool) FreeIndices(blockSize int, fn func(idx int) bool) {
	idx := int(p.firstAvailable)
	for i := 0; i < int(p.available); i++ {
		if !fn(idx) {
			return
		}
		off := idx * blockSize
		if off < 0 || off >= len(p.data) {
			return
		}
		idx = int(p.data[off])
	}
}
