package trace

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// Allocator is the allocation surface recorded and replayed by this package.
type Allocator interface {
	Allocate(size int) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, size int) error
}

// Recorder forwards calls to an Allocator and writes every successful call
// as an event. It is safe for concurrent use if the wrapped Allocator is.
type Recorder struct {
	a Allocator

	mu     sync.Mutex
	w      *Writer
	ids    map[uintptr]uint64
	nextID uint64
	err    error
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(a Allocator, w *Writer) *Recorder {
	return &Recorder{
		a:   a,
		w:   w,
		ids: make(map[uintptr]uint64),
	}
}

// Allocate implements Allocator.
func (r *Recorder) Allocate(size int) (unsafe.Pointer, error) {
	p, err := r.a.Allocate(size)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	// Zero-size allocations share one address and are never freed.
	if size > 0 {
		r.ids[uintptr(p)] = id
	}
	r.record(Event{Op: OpAlloc, ID: id, Size: size})
	return p, nil
}

// Deallocate implements Allocator.
func (r *Recorder) Deallocate(p unsafe.Pointer, size int) error {
	if err := r.a.Deallocate(p, size); err != nil {
		return err
	}
	if p == nil || size == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.ids[uintptr(p)]
	if !ok {
		r.setErr(fmt.Errorf("%w: free of unrecorded %#x", ErrUnknownID, uintptr(p)))
		return nil
	}
	delete(r.ids, uintptr(p))
	r.record(Event{Op: OpFree, ID: id, Size: size})
	return nil
}

func (r *Recorder) record(e Event) {
	if r.err != nil {
		return
	}
	r.setErr(r.w.Write(e))
}

func (r *Recorder) setErr(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// Live returns the number of recorded allocations not yet freed.
func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Err returns the first error that stopped recording. Allocation calls keep
// succeeding after a recording error; only the trace is cut short.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes the writer and returns the first recording error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.err, r.w.Close())
}
