// Package smalloc provides a segregated fixed-size allocator for small objects.
//
// Requests up to a configurable maximum object size are served from pools of
// equally sized blocks, one size class per distinct request size. Free blocks
// are chained through their own first byte, so a pool carries no per-block
// metadata, and allocation and deallocation are O(1) in the common case.
// Larger requests go straight to the backing source.
//
// # Quick Start
//
//	a, _ := smalloc.New()
//	defer a.Close()
//
//	p, _ := a.Allocate(24)
//	// ... use p ...
//	_ = a.Deallocate(p, 24)
//
// Deallocate must receive the same size that was passed to Allocate. The
// allocator does not record sizes per pointer.
//
// # Typed Helpers
//
// NewObject, DeleteObject, NewSlice and DeleteSlice wrap the raw interface for
// pointer-free types:
//
//	type point struct{ X, Y float64 }
//
//	pt, _ := smalloc.NewObject[point](a)
//	defer smalloc.DeleteObject(a, pt)
//
// Pool memory is invisible to the garbage collector, so types containing Go
// pointers are rejected with ErrPointerType.
//
// # Backing Sources
//
// Pools and large objects come from a backing.Source: the Go heap by default,
// anonymous memory mappings with backing.NewMmap, or either one charged against
// a shared memory budget with WithResourceController.
//
// # Concurrency
//
// An Allocator is single-threaded. Use one Allocator per goroutine for
// scaling, or NewLocked to share one. Default returns a lazily created,
// locked process-wide allocator used by Malloc and Free.
//
// # Checked Mode
//
// WithLiveTracking records every outstanding block so that double frees are
// reported as ErrInvalidFree. Verify walks all free lists and checks the
// bookkeeping; Dump prints every pool.
//
// # Observability
//
// Pool lifecycle events are logged through Logger (log/slog) at debug level
// and counted by a MetricsCollector. The observability package provides a
// Prometheus collector.
package smalloc
