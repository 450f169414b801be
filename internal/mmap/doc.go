// Package mmap provides anonymous and file-backed memory mappings.
//
// # Anonymous Mappings
//
// MapAnon() creates read-write anonymous mappings for off-heap memory. The
// backing.Mmap source uses them to obtain pool storage and large-object
// regions outside the Go garbage collector's control:
//
//	m, err := mmap.MapAnon(4096)
//	if err != nil { ... }
//	defer m.Close()
//	buf := m.Bytes()
//
// # File Mappings
//
// Open() maps a file read-only. The local blob store serves recorded
// allocation traces through it without copying them through kernel buffers.
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): Uses mmap(2) with madvise(2) for access hints
//   - Windows: Uses VirtualAlloc and CreateFileMapping/MapViewOfFile (madvise is a no-op)
//
// # Thread Safety
//
// Close() is idempotent and protected by atomic operations. Callers must
// ensure no goroutines access Bytes() after Close() returns.
package mmap
