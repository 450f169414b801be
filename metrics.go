package smalloc

import (
	"sync/atomic"
)

// MetricsCollector defines an interface for collecting allocator metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus; see the observability package.
//
// Allocate and Deallocate are recorded on the hot path, so implementations
// should be cheap and must be safe for concurrent use when the allocators
// they observe run on different goroutines.
type MetricsCollector interface {
	// RecordAllocate is called after each allocation. err is nil if successful.
	RecordAllocate(size int, err error)

	// RecordDeallocate is called after each deallocation.
	RecordDeallocate(size int, err error)

	// RecordPoolCreated is called when a size class obtains a new pool.
	RecordPoolCreated(blockSize, bytes int)

	// RecordPoolReused is called when a parked pool is put back into service.
	RecordPoolReused(blockSize int)

	// RecordPoolEmptied is called when a pool becomes empty and is parked.
	RecordPoolEmptied(blockSize int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocate(int, error)   {}
func (NoopMetricsCollector) RecordDeallocate(int, error) {}
func (NoopMetricsCollector) RecordPoolCreated(int, int)  {}
func (NoopMetricsCollector) RecordPoolReused(int)        {}
func (NoopMetricsCollector) RecordPoolEmptied(int)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocCount   atomic.Int64
	AllocErrors  atomic.Int64
	AllocBytes   atomic.Int64
	FreeCount    atomic.Int64
	FreeErrors   atomic.Int64
	FreeBytes    atomic.Int64
	PoolsCreated atomic.Int64
	PoolBytes    atomic.Int64
	PoolsReused  atomic.Int64
	PoolsEmptied atomic.Int64
}

// RecordAllocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocate(size int, err error) {
	b.AllocCount.Add(1)
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	b.AllocBytes.Add(int64(size))
}

// RecordDeallocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeallocate(size int, err error) {
	b.FreeCount.Add(1)
	if err != nil {
		b.FreeErrors.Add(1)
		return
	}
	b.FreeBytes.Add(int64(size))
}

// RecordPoolCreated implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPoolCreated(_ int, bytes int) {
	b.PoolsCreated.Add(1)
	b.PoolBytes.Add(int64(bytes))
}

// RecordPoolReused implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPoolReused(int) {
	b.PoolsReused.Add(1)
}

// RecordPoolEmptied implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPoolEmptied(int) {
	b.PoolsEmptied.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocCount:   b.AllocCount.Load(),
		AllocErrors:  b.AllocErrors.Load(),
		AllocBytes:   b.AllocBytes.Load(),
		FreeCount:    b.FreeCount.Load(),
		FreeErrors:   b.FreeErrors.Load(),
		FreeBytes:    b.FreeBytes.Load(),
		PoolsCreated: b.PoolsCreated.Load(),
		PoolBytes:    b.PoolBytes.Load(),
		PoolsReused:  b.PoolsReused.Load(),
		PoolsEmptied: b.PoolsEmptied.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocCount   int64 `json:"alloc_count"`
	AllocErrors  int64 `json:"alloc_errors"`
	AllocBytes   int64 `json:"alloc_bytes"`
	FreeCount    int64 `json:"free_count"`
	FreeErrors   int64 `json:"free_errors"`
	FreeBytes    int64 `json:"free_bytes"`
	PoolsCreated int64 `json:"pools_created"`
	PoolBytes    int64 `json:"pool_bytes"`
	PoolsReused  int64 `json:"pools_reused"`
	PoolsEmptied int64 `json:"pools_emptied"`
}

// LiveBytes returns the bytes allocated and not yet freed.
func (s BasicMetricsStats) LiveBytes() int64 {
	return s.AllocBytes - s.FreeBytes
}
