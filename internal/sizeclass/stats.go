package sizeclass

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/smalloc/internal/conv"
)

// Stats is a snapshot of an allocator's bookkeeping.
type Stats struct {
	BlockSize     int `json:"block_size"`
	BlocksPerPool int `json:"blocks_per_pool"`
	Pools         int `json:"pools"`
	ActivePools   int `json:"active_pools"`
	FreePools     int `json:"free_pools"`
	FullPools     int `json:"full_pools"`
	LiveBlocks    int `json:"live_blocks"`
	FreeBlocks    int `json:"free_blocks"`
	ReservedBytes int `json:"reserved_bytes"`
}

// PoolInfo describes one pool.
type PoolInfo struct {
	Slot      int
	Base      uintptr
	Bytes     int
	Available int
	Parked    bool
}

// Stats returns a snapshot of a's bookkeeping.
func (a *Allocator) Stats() Stats {
	st := Stats{
		BlockSize:     a.blockSize,
		BlocksPerPool: a.blocks,
		Pools:         len(a.slots),
		ActivePools:   a.index.Len(),
		FreePools:     len(a.freePools),
		FullPools:     a.numFull,
	}
	for i := range a.slots {
		p := &a.slots[i].pool
		st.FreeBlocks += p.Available()
		st.LiveBlocks += a.blocks - p.Available()
		st.ReservedBytes += p.Len()
	}
	return st
}

// Pools calls fn for every pool in slot order.
func (a *Allocator) Pools(fn func(PoolInfo)) {
	for i := range a.slots {
		s := &a.slots[i]
		fn(PoolInfo{
			Slot:      i,
			Base:      s.pool.Base(),
			Bytes:     s.pool.Len(),
			Available: s.pool.Available(),
			Parked:    s.parked,
		})
	}
}

// Verify walks every free list and checks the allocator's bookkeeping.
func (a *Allocator) Verify() error {
	if a.closed {
		return ErrClosed
	}

	free := roaring.New()
	full, active, live := 0, 0, 0

	for id := range a.slots {
		s := &a.slots[id]
		p := &s.pool

		chain := roaring.New()
		var walkErr error
		p.FreeIndices(a.blockSize, func(idx int) bool {
			if idx < 0 || idx >= a.blocks {
				walkErr = fmt.Errorf("%w: pool %d links to index %d of %d", ErrCorrupt, id, idx, a.blocks)
				return false
			}
			u, err := conv.IntToUint32(idx)
			if err != nil {
				walkErr = fmt.Errorf("%w: pool %d: %w", ErrCorrupt, id, err)
				return false
			}
			if !chain.CheckedAdd(u) {
				walkErr = fmt.Errorf("%w: pool %d free list cycles at index %d", ErrCorrupt, id, idx)
				return false
			}
			return true
		})
		if walkErr != nil {
			return walkErr
		}
		if got := int(chain.GetCardinality()); got != p.Available() {
			return fmt.Errorf("%w: pool %d free list has %d entries, available is %d", ErrCorrupt, id, got, p.Available())
		}

		e, indexed := a.index.Get(indexEntry{base: p.Base()})
		indexed = indexed && e.slot == id

		if s.parked {
			if indexed {
				return fmt.Errorf("%w: parked pool %d is still indexed", ErrCorrupt, id)
			}
			if p.Available() != a.blocks {
				return fmt.Errorf("%w: parked pool %d has %d live blocks", ErrCorrupt, id, a.blocks-p.Available())
			}
		} else {
			if !indexed {
				return fmt.Errorf("%w: pool %d missing from index", ErrCorrupt, id)
			}
			active++
			if p.Available() == 0 {
				full++
			}
		}

		live += a.blocks - p.Available()
		var idErr error
		chain.Iterate(func(idx uint32) bool {
			var bid uint32
			if bid, idErr = a.blockID(id, int(idx)); idErr != nil {
				return false
			}
			free.Add(bid)
			return true
		})
		if idErr != nil {
			return idErr
		}
	}

	if full != a.numFull {
		return fmt.Errorf("%w: %d full pools counted as %d", ErrCorrupt, full, a.numFull)
	}
	if active != a.index.Len() {
		return fmt.Errorf("%w: index has %d entries for %d active pools", ErrCorrupt, a.index.Len(), active)
	}
	if active+len(a.freePools) != len(a.slots) {
		return fmt.Errorf("%w: %d active and %d parked pools for %d slots", ErrCorrupt, active, len(a.freePools), len(a.slots))
	}
	for _, c := range []int{a.allocPool, a.deallocPool} {
		if c != unset && (c >= len(a.slots) || a.slots[c].parked) {
			return fmt.Errorf("%w: cache refers to unavailable pool %d", ErrCorrupt, c)
		}
	}

	if a.live != nil {
		if got := int(a.live.GetCardinality()); got != live {
			return fmt.Errorf("%w: %d tracked live blocks, pools report %d", ErrCorrupt, got, live)
		}
		if free.Intersects(a.live) {
			return fmt.Errorf("%w: a block is both live and free", ErrCorrupt)
		}
	}

	return nil
}
