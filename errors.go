package smalloc

import (
	"errors"
	"fmt"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/blockpool"
	"github.com/hupe1980/smalloc/internal/sizeclass"
	"github.com/hupe1980/smalloc/internal/smallobj"
	"github.com/hupe1980/smalloc/resource"
)

var (
	// ErrOutOfMemory is returned when the backing source cannot satisfy a request.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrInvalidFree is returned when a pointer and size do not name a live allocation.
	ErrInvalidFree = errors.New("invalid free")
	// ErrCapacityOverflow is returned when a pool capacity exceeds the link width.
	ErrCapacityOverflow = errors.New("capacity overflow")
	// ErrInvalidSize is returned for negative sizes and invalid configuration.
	ErrInvalidSize = errors.New("invalid size")
	// ErrClosed is returned by operations on a closed allocator.
	ErrClosed = errors.New("allocator closed")
	// ErrPointerType is returned by the typed helpers for types containing pointers.
	ErrPointerType = errors.New("type contains pointers")
	// ErrLeaked is returned by Close when allocations are still outstanding.
	ErrLeaked = errors.New("allocations leaked")
)

// InvalidFreeError describes a rejected Deallocate call.
//
// errors.Is(err, ErrInvalidFree) reports true. The underlying cause can be
// accessed via errors.Unwrap.
type InvalidFreeError struct {
	Addr  uintptr
	Size  int
	cause error
}

func (e *InvalidFreeError) Error() string {
	return fmt.Sprintf("invalid free of %#x (%d bytes): %v", e.Addr, e.Size, e.cause)
}

func (e *InvalidFreeError) Unwrap() error { return e.cause }

// Is reports whether target is ErrInvalidFree.
func (e *InvalidFreeError) Is(target error) bool { return target == ErrInvalidFree }

func isInvalidFree(err error) bool {
	return errors.Is(err, sizeclass.ErrNotOwned) ||
		errors.Is(err, sizeclass.ErrMisaligned) ||
		errors.Is(err, sizeclass.ErrDoubleFree) ||
		errors.Is(err, smallobj.ErrUnknownSizeClass) ||
		errors.Is(err, smallobj.ErrUnknownObject) ||
		errors.Is(err, backing.ErrUnknownRegion)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, backing.ErrOutOfMemory), errors.Is(err, resource.ErrMemoryLimitExceeded):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	case errors.Is(err, blockpool.ErrCapacityOverflow), errors.Is(err, sizeclass.ErrTrackingOverflow):
		return fmt.Errorf("%w: %w", ErrCapacityOverflow, err)
	case errors.Is(err, blockpool.ErrInvalidBlockSize), errors.Is(err, smallobj.ErrInvalidSize), errors.Is(err, backing.ErrInvalidSize):
		return fmt.Errorf("%w: %w", ErrInvalidSize, err)
	case errors.Is(err, sizeclass.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, sizeclass.ErrLeaked):
		return fmt.Errorf("%w: %w", ErrLeaked, err)
	case isInvalidFree(err):
		return fmt.Errorf("%w: %w", ErrInvalidFree, err)
	}

	return err
}
