package smalloc

import (
	"io"
	"sync"
	"unsafe"
)

// Locked serializes every call to an Allocator with a mutex.
type Locked struct {
	mu sync.Mutex
	a  *Allocator
}

// NewLocked wraps a for use from several goroutines. a must not be used
// directly afterwards.
func NewLocked(a *Allocator) *Locked {
	return &Locked{a: a}
}

// Allocate is the synchronized form of Allocator.Allocate.
func (l *Locked) Allocate(size int) (unsafe.Pointer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Allocate(size)
}

// Deallocate is the synchronized form of Allocator.Deallocate.
func (l *Locked) Deallocate(p unsafe.Pointer, size int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Deallocate(p, size)
}

// AllocBytes is the synchronized form of Allocator.AllocBytes.
func (l *Locked) AllocBytes(size int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.AllocBytes(size)
}

// FreeBytes is the synchronized form of Allocator.FreeBytes.
func (l *Locked) FreeBytes(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.FreeBytes(b)
}

// Owns is the synchronized form of Allocator.Owns.
func (l *Locked) Owns(p unsafe.Pointer) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Owns(p)
}

// Stats is the synchronized form of Allocator.Stats.
func (l *Locked) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Stats()
}

// Verify is the synchronized form of Allocator.Verify.
func (l *Locked) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Verify()
}

// Dump is the synchronized form of Allocator.Dump.
func (l *Locked) Dump(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Dump(w)
}

// Close is the synchronized form of Allocator.Close.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Close()
}
