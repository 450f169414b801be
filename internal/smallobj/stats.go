package smallobj

import (
	"fmt"

	"github.com/hupe1980/smalloc/internal/sizeclass"
)

// Stats is a snapshot of an Allocator.
type Stats struct {
	PoolBytes     int               `json:"pool_bytes"`
	MaxObjectSize int               `json:"max_object_size"`
	Classes       []sizeclass.Stats `json:"classes"`
	LargeObjects  int               `json:"large_objects"`
	LargeBytes    int               `json:"large_bytes"`
}

// LiveBlocks returns the number of outstanding pool blocks across classes.
func (s Stats) LiveBlocks() int {
	n := 0
	for _, c := range s.Classes {
		n += c.LiveBlocks
	}
	return n
}

// ReservedBytes returns the pool storage held across classes.
func (s Stats) ReservedBytes() int {
	n := 0
	for _, c := range s.Classes {
		n += c.ReservedBytes
	}
	return n
}

// Stats returns a snapshot of a.
func (a *Allocator) Stats() Stats {
	st := Stats{
		PoolBytes:     a.cfg.PoolBytes,
		MaxObjectSize: a.cfg.MaxObjectSize,
		Classes:       make([]sizeclass.Stats, 0, len(a.classes)),
		LargeObjects:  len(a.large),
		LargeBytes:    a.largeBytes,
	}
	for _, c := range a.classes {
		st.Classes = append(st.Classes, c.Stats())
	}
	return st
}

// Verify checks every size class and the class ordering.
func (a *Allocator) Verify() error {
	if a.closed {
		return sizeclass.ErrClosed
	}
	for i, c := range a.classes {
		if i > 0 && a.classes[i-1].BlockSize() >= c.BlockSize() {
			return fmt.Errorf("%w: size classes out of order at %d", sizeclass.ErrCorrupt, c.BlockSize())
		}
		if err := c.Verify(); err != nil {
			return fmt.Errorf("size class %d: %w", c.BlockSize(), err)
		}
	}
	bytes := 0
	for _, buf := range a.large {
		bytes += len(buf)
	}
	if bytes != a.largeBytes {
		return fmt.Errorf("%w: %d large object bytes tracked, counted %d", sizeclass.ErrCorrupt, bytes, a.largeBytes)
	}
	return nil
}
