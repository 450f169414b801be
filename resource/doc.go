// Package resource implements the Controller for limits shared between
// allocator instances.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: Budget for backing memory handed out to pools and large objects (fail-fast)
//   - Concurrency: Limit concurrent background jobs (trace replays)
//   - IO: Rate-limit trace uploads and downloads
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. Allocators call TryAcquireMemory, which never blocks and
// returns ErrMemoryLimitExceeded when the budget is exhausted:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20, // 64MB budget
//	})
//
//	if err := rc.TryAcquireMemory(4096); err != nil {
//	    // ErrMemoryLimitExceeded - surfaced as out-of-memory to the caller
//	}
//	defer rc.ReleaseMemory(4096)
//
// # IO Rate Limiting
//
//	writer := resource.NewRateLimitedWriter(ctx, blob, rc)
//	reader := resource.NewRateLimitedReader(ctx, body, rc)
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
