package testutil

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// heapAllocator serves every request from the Go heap and tracks live blocks.
type heapAllocator struct {
	live map[uintptr][]byte
}

func newHeapAllocator() *heapAllocator {
	return &heapAllocator{live: make(map[uintptr][]byte)}
}

func (h *heapAllocator) Allocate(size int) (unsafe.Pointer, error) {
	b := make([]byte, max(size, 1))
	p := unsafe.Pointer(unsafe.SliceData(b))
	h.live[uintptr(p)] = b
	return p, nil
}

func (h *heapAllocator) Deallocate(p unsafe.Pointer, size int) error {
	b, ok := h.live[uintptr(p)]
	if !ok || (size > 0 && len(b) != size) {
		return errors.New("invalid free")
	}
	delete(h.live, uintptr(p))
	return nil
}

// aliasingAllocator hands out the same block twice.
type aliasingAllocator struct {
	heapAllocator
	last unsafe.Pointer
}

func (a *aliasingAllocator) Allocate(size int) (unsafe.Pointer, error) {
	if a.last != nil {
		return a.last, nil
	}
	p, err := a.heapAllocator.Allocate(size)
	a.last = p
	return p, err
}

func (a *aliasingAllocator) Deallocate(unsafe.Pointer, int) error { return nil }

func TestWorkload_Deterministic(t *testing.T) {
	cfg := WorkloadConfig{Ops: 500, Distribution: Zipfian}

	a := NewRNG(99).Workload(cfg)
	b := NewRNG(99).Workload(cfg)

	assert.Equal(t, a, b)
	assert.Len(t, a, 500)
	assert.False(t, a[0].Free, "the first op must allocate")
}

func TestWorkload_Sizes(t *testing.T) {
	rng := NewRNG(3)

	for _, dist := range []Distribution{Uniform, Zipfian, Fixed} {
		t.Run(dist.String(), func(t *testing.T) {
			ops := rng.Workload(WorkloadConfig{Ops: 2000, MinSize: 4, MaxSize: 32, Distribution: dist})
			for _, op := range ops {
				if op.Free {
					continue
				}
				assert.GreaterOrEqual(t, op.Size, 4)
				assert.LessOrEqual(t, op.Size, 32)
				if dist == Fixed {
					assert.Equal(t, 32, op.Size)
				}
			}
		})
	}
}

func TestWorkload_Large(t *testing.T) {
	ops := NewRNG(5).Workload(WorkloadConfig{Ops: 1000, MaxSize: 16, LargeRatio: 0.5})

	large := 0
	for _, op := range ops {
		if !op.Free && op.Size == 64 {
			large++
		}
	}
	assert.Greater(t, large, 100)
}

func TestRunWorkload(t *testing.T) {
	h := newHeapAllocator()
	ops := NewRNG(11).Workload(WorkloadConfig{Ops: 3000})

	res, err := RunWorkload(h, ops, RunOptions{Fill: true})
	require.NoError(t, err)

	assert.Equal(t, res.Allocs, res.Frees+res.FinalFree)
	assert.Equal(t, res.LeftLive, res.FinalFree)
	assert.Greater(t, res.PeakLive, 0)
	assert.Empty(t, h.live)
}

func TestRunWorkload_KeepLive(t *testing.T) {
	h := newHeapAllocator()
	ops := []Op{{Size: 8}, {Size: 16}, {Free: true, Victim: 0}, {Size: 4}}

	res, err := RunWorkload(h, ops, RunOptions{KeepLive: true})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Allocs)
	assert.Equal(t, 1, res.Frees)
	assert.Equal(t, 2, res.LeftLive)
	assert.Equal(t, int64(28), res.Bytes)
	assert.Len(t, h.live, 2)
}

func TestRunWorkload_DetectsOverlap(t *testing.T) {
	a := &aliasingAllocator{heapAllocator: *newHeapAllocator()}
	ops := []Op{{Size: 8}, {Size: 8}, {Free: true, Victim: 0}}

	_, err := RunWorkload(a, ops, RunOptions{Fill: true})
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestParseDistribution(t *testing.T) {
	for _, d := range []Distribution{Uniform, Zipfian, Fixed} {
		got, err := ParseDistribution(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDistribution("normal")
	assert.Error(t, err)
}
