package smalloc

import (
	"fmt"
	"io"
	"text/tabwriter"
	"unsafe"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/sizeclass"
	"github.com/hupe1980/smalloc/internal/smallobj"
)

// Stats is a snapshot of an Allocator.
type Stats = smallobj.Stats

// ClassStats is a snapshot of one size class.
type ClassStats = sizeclass.Stats

// Allocator is a small-object allocator.
//
// An Allocator is not safe for concurrent use. Give each goroutine its own
// Allocator, or wrap a shared one with NewLocked.
type Allocator struct {
	soa     *smallobj.Allocator
	source  backing.Source
	logger  *Logger
	metrics MetricsCollector
}

// New creates an Allocator.
func New(optFns ...Option) (*Allocator, error) {
	o := applyOptions(optFns)

	a := &Allocator{
		source:  o.source,
		logger:  o.logger,
		metrics: o.metricsCollector,
	}

	soa, err := smallobj.New(smallobj.Config{
		PoolBytes:     o.poolBytes,
		MaxObjectSize: o.maxObjectSize,
		Source:        o.source,
		Observer:      poolObserver{a},
		LiveTracking:  o.liveTracking,
		IndexDegree:   o.indexDegree,
	})
	if err != nil {
		return nil, translateError(err)
	}
	a.soa = soa

	return a, nil
}

// Allocate returns a pointer to size bytes. Sizes above the maximum object
// size are served by the backing source. A zero size returns a shared
// non-nil address that must not be written to.
//
// Memory served from pools is not zeroed and is not scanned by the garbage
// collector: never store Go pointers in it.
func (a *Allocator) Allocate(size int) (unsafe.Pointer, error) {
	p, err := a.soa.Allocate(size)
	if err != nil {
		err = translateError(err)
		a.logger.LogOutOfMemory(size, err)
	}
	a.metrics.RecordAllocate(size, err)
	return p, err
}

// Deallocate frees p, which must have been returned by Allocate with the same
// size. Freeing nil is a no-op. Rejected frees return an *InvalidFreeError.
func (a *Allocator) Deallocate(p unsafe.Pointer, size int) error {
	err := a.soa.Deallocate(p, size)
	if err != nil {
		err = translateError(err)
		if isInvalidFree(err) {
			err = &InvalidFreeError{Addr: uintptr(p), Size: size, cause: err}
		}
		a.logger.LogInvalidFree(uintptr(p), size, err)
	}
	a.metrics.RecordDeallocate(size, err)
	return err
}

// AllocBytes returns a byte slice of length and capacity size.
func (a *Allocator) AllocBytes(size int) ([]byte, error) {
	p, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), size), nil
}

// FreeBytes frees a slice returned by AllocBytes. The slice may have been
// truncated but must start at the original address.
func (a *Allocator) FreeBytes(b []byte) error {
	return a.Deallocate(unsafe.Pointer(unsafe.SliceData(b)), cap(b))
}

// Owns reports whether p lies inside one of a's pools.
func (a *Allocator) Owns(p unsafe.Pointer) bool {
	return a.soa.Owns(p)
}

// Source returns the backing source.
func (a *Allocator) Source() backing.Source {
	return a.source
}

// Stats returns a snapshot of a.
func (a *Allocator) Stats() Stats {
	return a.soa.Stats()
}

// Verify walks every pool and checks a's bookkeeping.
func (a *Allocator) Verify() error {
	return translateError(a.soa.Verify())
}

// Dump writes a human-readable description of every size class and pool.
func (a *Allocator) Dump(w io.Writer) error {
	st := a.soa.Stats()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "pool bytes %d, max object size %d, large objects %d (%d bytes)\n",
		st.PoolBytes, st.MaxObjectSize, st.LargeObjects, st.LargeBytes)

	a.soa.Classes(func(c *sizeclass.Allocator) {
		cs := c.Stats()
		fmt.Fprintf(tw, "\nclass %d\tblocks/pool %d\tlive %d\tfull %d\tparked %d\n",
			cs.BlockSize, cs.BlocksPerPool, cs.LiveBlocks, cs.FullPools, cs.FreePools)
		fmt.Fprintln(tw, "  slot\tbase\tbytes\tavailable\tstate")
		c.Pools(func(p sizeclass.PoolInfo) {
			state := "active"
			switch {
			case p.Parked:
				state = "parked"
			case p.Available == 0:
				state = "full"
			}
			fmt.Fprintf(tw, "  %d\t%#x\t%d\t%d\t%s\n", p.Slot, p.Base, p.Bytes, p.Available, state)
		})
	})

	return tw.Flush()
}

// Close releases every pool. It returns ErrLeaked if allocations are still
// outstanding; storage is released either way.
func (a *Allocator) Close() error {
	st := a.soa.Stats()
	err := translateError(a.soa.Close())
	a.logger.LogClose(st, err)
	return err
}

type poolObserver struct {
	a *Allocator
}

func (o poolObserver) PoolCreated(blockSize int, base uintptr, bytes int) {
	o.a.logger.LogPoolCreated(blockSize, base, bytes)
	o.a.metrics.RecordPoolCreated(blockSize, bytes)
}

func (o poolObserver) PoolReused(blockSize int, base uintptr) {
	o.a.logger.LogPoolReused(blockSize, base)
	o.a.metrics.RecordPoolReused(blockSize)
}

func (o poolObserver) PoolEmptied(blockSize int, base uintptr) {
	o.a.logger.LogPoolEmptied(blockSize, base)
	o.a.metrics.RecordPoolEmptied(blockSize)
}
