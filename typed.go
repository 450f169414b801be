package smalloc

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/hupe1980/smalloc/internal/conv"
)

// MemoryAllocator is the allocation surface shared by Allocator and Locked.
type MemoryAllocator interface {
	Allocate(size int) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, size int) error
}

var (
	_ MemoryAllocator = (*Allocator)(nil)
	_ MemoryAllocator = (*Locked)(nil)
)

var pointerFree sync.Map // reflect.Type -> bool

// NewObject allocates a zeroed T. T must not contain pointers.
func NewObject[T any](a MemoryAllocator) (*T, error) {
	if err := checkPointerFree[T](); err != nil {
		return nil, err
	}

	size := int(unsafe.Sizeof(*new(T)))
	p, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		clear(unsafe.Slice((*byte)(p), size))
	}
	return (*T)(p), nil
}

// DeleteObject frees a T obtained from NewObject.
func DeleteObject[T any](a MemoryAllocator, v *T) error {
	if v == nil {
		return nil
	}
	return a.Deallocate(unsafe.Pointer(v), int(unsafe.Sizeof(*v)))
}

// NewSlice allocates a zeroed slice of n elements. T must not contain pointers.
//
// The allocation is exactly n*sizeof(T) bytes with no header; DeleteSlice
// derives the same size from the slice capacity.
func NewSlice[T any](a MemoryAllocator, n int) ([]T, error) {
	if err := checkPointerFree[T](); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d elements", ErrInvalidSize, n)
	}

	size, err := conv.MulInt(n, int(unsafe.Sizeof(*new(T))))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSize, err)
	}

	p, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		clear(unsafe.Slice((*byte)(p), size))
	}
	return unsafe.Slice((*T)(p), n), nil
}

// DeleteSlice frees a slice obtained from NewSlice. The slice may have been
// truncated but must start at the original element.
func DeleteSlice[T any](a MemoryAllocator, s []T) error {
	if cap(s) == 0 {
		return nil
	}
	size := cap(s) * int(unsafe.Sizeof(*new(T)))
	return a.Deallocate(unsafe.Pointer(unsafe.SliceData(s)), size)
}

func checkPointerFree[T any]() error {
	t := reflect.TypeFor[T]()
	if v, ok := pointerFree.Load(t); ok {
		if v.(bool) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrPointerType, t)
	}

	free := !hasPointers(t)
	pointerFree.Store(t, free)
	if !free {
		return fmt.Errorf("%w: %v", ErrPointerType, t)
	}
	return nil
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
