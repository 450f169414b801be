// Package backing provides the privileged allocators that supply raw storage
// to the small-object allocator.
//
// A Source is used for exactly two things: obtaining the contiguous storage of
// a block pool, and serving large objects that bypass the size-class
// machinery. A Source must never be implemented on top of the small-object
// allocator it feeds.
//
// # Implementations
//
//   - Heap: storage from the Go heap (make([]byte)); Free drops the reference
//   - Mmap: off-heap anonymous mappings (no GC scanning, explicit munmap)
//   - Limited: wraps another Source with a resource.Controller memory budget
//
// # Garbage Collector Interaction
//
// Neither heap byte slices nor anonymous mappings are scanned by the garbage
// collector. Memory handed out from a Source must not hold the only reference
// to a Go heap object.
package backing
