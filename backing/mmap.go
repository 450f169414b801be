package backing

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/hupe1980/smalloc/internal/mmap"
)

// MmapOption configures an Mmap source.
type MmapOption func(*Mmap)

// WithAccessPattern advises the kernel about the expected access pattern of
// every mapping created by the source.
func WithAccessPattern(p mmap.AccessPattern) MmapOption {
	return func(m *Mmap) {
		m.advice = p
	}
}

// Mmap allocates storage from anonymous memory mappings, one mapping per
// request. It is safe for concurrent use.
type Mmap struct {
	mu       sync.Mutex
	mappings map[uintptr]*mmap.Mapping
	advice   mmap.AccessPattern
	mapped   int64
}

// NewMmap creates an Mmap source.
func NewMmap(opts ...MmapOption) *Mmap {
	m := &Mmap{
		mappings: make(map[uintptr]*mmap.Mapping),
		advice:   mmap.AccessDefault,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Alloc implements Source.
func (m *Mmap) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("%w: map %d bytes: %w", ErrOutOfMemory, size, err)
	}
	if m.advice != mmap.AccessDefault {
		// Advisory only.
		_ = mapping.Advise(m.advice)
	}

	m.mu.Lock()
	m.mappings[mapping.Base()] = mapping
	m.mapped += int64(size)
	m.mu.Unlock()

	return mapping.Bytes(), nil
}

// Free implements Source.
func (m *Mmap) Free(buf []byte) error {
	if len(buf) == 0 {
		return ErrUnknownRegion
	}
	base := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // address is used as a lookup key only

	m.mu.Lock()
	mapping, ok := m.mappings[base]
	switch {
	case !ok:
		m.mu.Unlock()
		return fmt.Errorf("%w: %#x", ErrUnknownRegion, base)
	case mapping.Size() != len(buf):
		m.mu.Unlock()
		return fmt.Errorf("%w: %#x mapped with %d bytes, freed with %d", ErrUnknownRegion, base, mapping.Size(), len(buf))
	}
	delete(m.mappings, base)
	m.mapped -= int64(mapping.Size())
	m.mu.Unlock()

	return mapping.Close()
}

// MappedBytes returns the number of bytes currently mapped.
func (m *Mmap) MappedBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapped
}

// Mappings returns the number of live mappings.
func (m *Mmap) Mappings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mappings)
}
