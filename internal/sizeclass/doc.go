// Package sizeclass manages every pool serving a single block size.
//
// An Allocator grows by adding blockpool.Pool values. Pools live in an
// append-only slot table and are identified by slot index, never by address
// of the Pool struct, so growing the table leaves the allocation and
// deallocation caches valid.
//
// # Lookup
//
// Deallocate resolves the owning pool in two steps: the cached deallocation
// pool is tried first, then a B-tree keyed by pool base address is searched for
// the largest base not above the pointer. Pointers outside every registered
// pool, or not on a block boundary, are rejected.
//
// # Pool Lifecycle
//
// A pool that becomes completely empty is removed from the B-tree and parked on
// a free list. The next allocation that misses the cache reuses a parked pool
// before creating a new one. Storage goes back to the Source only on Close.
//
// # Checked Mode
//
// WithLiveTracking records every outstanding block in a roaring bitmap so that
// double frees are reported instead of corrupting a free list. Verify walks
// every free list and checks the allocator's bookkeeping in either mode.
package sizeclass
