package sizeclass

import "errors"

var (
	// ErrNotOwned is returned when a pointer lies outside every registered pool.
	ErrNotOwned = errors.New("sizeclass: pointer not owned")
	// ErrMisaligned is returned when a pointer is inside a pool but not on a block boundary.
	ErrMisaligned = errors.New("sizeclass: pointer not block aligned")
	// ErrDoubleFree is returned in checked mode for a block that is not live.
	ErrDoubleFree = errors.New("sizeclass: double free")
	// ErrLeaked is returned by Close when blocks are still outstanding.
	ErrLeaked = errors.New("sizeclass: blocks leaked")
	// ErrClosed is returned by operations on a closed allocator.
	ErrClosed = errors.New("sizeclass: allocator closed")
	// ErrTrackingOverflow is returned in checked mode when block ids no longer fit 32 bits.
	ErrTrackingOverflow = errors.New("sizeclass: too many blocks to track")
	// ErrCorrupt is returned by Verify when bookkeeping is inconsistent.
	ErrCorrupt = errors.New("sizeclass: corrupt state")
)
