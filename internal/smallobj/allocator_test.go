package smallobj

import (
	"math/rand/v2"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/sizeclass"
	"github.com/hupe1980/smalloc/resource"
)

// flakySource rejects the next Free when failFree is set.
type flakySource struct {
	backing.Heap
	failFree bool
}

func (s *flakySource) Free(buf []byte) error {
	if s.failFree {
		s.failFree = false
		return backing.ErrUnknownRegion
	}
	return s.Heap.Free(buf)
}

type poolRecorder struct {
	sizeclass.NoopObserver
	bases map[int][]uintptr
}

func (r *poolRecorder) PoolCreated(blockSize int, base uintptr, _ int) {
	if r.bases == nil {
		r.bases = make(map[int][]uintptr)
	}
	r.bases[blockSize] = append(r.bases[blockSize], base)
}

func newAllocator(t *testing.T, cfg Config) *Allocator {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_Defaults(t *testing.T) {
	a := newAllocator(t, Config{})
	assert.Equal(t, DefaultPoolBytes, a.PoolBytes())
	assert.Equal(t, DefaultMaxObjectSize, a.MaxObjectSize())

	_, err := New(Config{PoolBytes: -1})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestAllocator_BlocksPerPool(t *testing.T) {
	a := newAllocator(t, Config{PoolBytes: 4096})

	assert.Equal(t, 255, a.BlocksPerPool(1))
	assert.Equal(t, 255, a.BlocksPerPool(16))
	assert.Equal(t, 128, a.BlocksPerPool(32))
	assert.Equal(t, 64, a.BlocksPerPool(64))
	assert.Equal(t, 1, a.BlocksPerPool(8192))
}

func TestAllocator_ReusesFreedBlock(t *testing.T) {
	rec := &poolRecorder{}
	a := newAllocator(t, Config{MaxObjectSize: 64, Observer: rec})

	p1, err := a.Allocate(16)
	require.NoError(t, err)
	p2, err := a.Allocate(16)
	require.NoError(t, err)

	require.NotNil(t, p1)
	require.NotNil(t, p2)
	assert.NotEqual(t, p1, p2)

	require.Len(t, rec.bases[16], 1)
	base := rec.bases[16][0]
	span := uintptr(16 * a.BlocksPerPool(16))
	for _, p := range []unsafe.Pointer{p1, p2} {
		assert.GreaterOrEqual(t, uintptr(p), base)
		assert.Less(t, uintptr(p), base+span)
	}

	require.NoError(t, a.Deallocate(p1, 16))
	require.NoError(t, a.Deallocate(p2, 16))

	p3, err := a.Allocate(16)
	require.NoError(t, err)
	assert.Contains(t, []unsafe.Pointer{p1, p2}, p3)
	require.NoError(t, a.Verify())
}

func TestAllocator_LargeObjectBypassesPools(t *testing.T) {
	a := newAllocator(t, Config{MaxObjectSize: 64})

	small, err := a.Allocate(32)
	require.NoError(t, err)

	large, err := a.Allocate(128)
	require.NoError(t, err)
	require.NotNil(t, large)

	assert.True(t, a.Owns(small))
	assert.False(t, a.Owns(large))

	st := a.Stats()
	assert.Equal(t, 1, st.LargeObjects)
	assert.Equal(t, 128, st.LargeBytes)
	require.Len(t, st.Classes, 1)
	assert.Equal(t, 32, st.Classes[0].BlockSize)

	require.NoError(t, a.Deallocate(large, 128))
	require.NoError(t, a.Deallocate(small, 32))
	assert.Equal(t, 0, a.Stats().LargeObjects)
}

func TestAllocator_LargeObjectsOnMmap(t *testing.T) {
	src := backing.NewMmap()
	a := newAllocator(t, Config{Source: src})

	p, err := a.Allocate(10000)
	require.NoError(t, err)
	buf := unsafe.Slice((*byte)(p), 10000)
	buf[9999] = 7

	assert.ErrorIs(t, a.Deallocate(p, 9999), ErrUnknownObject)
	require.NoError(t, a.Deallocate(p, 10000))
	assert.ErrorIs(t, a.Deallocate(p, 10000), ErrUnknownObject)
	assert.Equal(t, 0, src.Mappings())
}

func TestAllocator_LargeFreeRejectedBySource(t *testing.T) {
	src := &flakySource{}
	a := newAllocator(t, Config{Source: src})

	p, err := a.Allocate(512)
	require.NoError(t, err)

	src.failFree = true
	assert.ErrorIs(t, a.Deallocate(p, 512), backing.ErrUnknownRegion)
	assert.Equal(t, 1, a.Stats().LargeObjects)
	require.NoError(t, a.Verify())

	require.NoError(t, a.Deallocate(p, 512))
	assert.Equal(t, 0, a.Stats().LargeObjects)
	require.NoError(t, a.Verify())
}

func TestAllocator_CloseReleasesLargeObjects(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	mm := backing.NewMmap()
	a, err := New(Config{PoolBytes: 256, Source: backing.NewLimited(mm, rc)})
	require.NoError(t, err)

	_, err = a.Allocate(16)
	require.NoError(t, err)
	_, err = a.Allocate(4096)
	require.NoError(t, err)
	assert.Equal(t, int64(256+4096), rc.MemoryUsage())

	assert.ErrorIs(t, a.Close(), sizeclass.ErrLeaked)
	assert.Equal(t, int64(0), rc.MemoryUsage())
	assert.Equal(t, 0, mm.Mappings())
}

func TestAllocator_IndexDegree(t *testing.T) {
	a := newAllocator(t, Config{IndexDegree: 3})
	_, err := a.Allocate(8)
	require.NoError(t, err)
	_, err = a.Allocate(24)
	require.NoError(t, err)

	a.Classes(func(c *sizeclass.Allocator) {
		assert.Equal(t, 3, c.IndexDegree())
	})
}

func TestAllocator_ZeroSize(t *testing.T) {
	a := newAllocator(t, Config{})

	p1, err := a.Allocate(0)
	require.NoError(t, err)
	p2, err := a.Allocate(0)
	require.NoError(t, err)

	assert.NotNil(t, p1)
	assert.Equal(t, p1, p2)
	assert.False(t, a.Owns(p1))
	assert.Empty(t, a.Stats().Classes)

	require.NoError(t, a.Deallocate(p1, 0))
	require.NoError(t, a.Deallocate(nil, 16))
}

func TestAllocator_InvalidRequests(t *testing.T) {
	a := newAllocator(t, Config{})

	_, err := a.Allocate(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	var x [8]byte
	assert.ErrorIs(t, a.Deallocate(unsafe.Pointer(&x[0]), 8), ErrUnknownSizeClass)

	p, err := a.Allocate(8)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Deallocate(unsafe.Pointer(&x[0]), 8), sizeclass.ErrNotOwned)
	require.NoError(t, a.Deallocate(p, 8))
}

func TestAllocator_ClassesSorted(t *testing.T) {
	a := newAllocator(t, Config{})

	for _, size := range []int{48, 8, 64, 16, 8, 33, 1} {
		_, err := a.Allocate(size)
		require.NoError(t, err)
	}

	var sizes []int
	a.Classes(func(c *sizeclass.Allocator) { sizes = append(sizes, c.BlockSize()) })
	assert.Equal(t, []int{1, 8, 16, 33, 48, 64}, sizes)
	assert.Equal(t, 7, a.Stats().LiveBlocks())
	require.NoError(t, a.Verify())
}

func TestAllocator_CloseReportsLeaks(t *testing.T) {
	a, err := New(Config{})
	require.NoError(t, err)

	_, err = a.Allocate(16)
	require.NoError(t, err)
	_, err = a.Allocate(1024)
	require.NoError(t, err)

	err = a.Close()
	assert.ErrorIs(t, err, sizeclass.ErrLeaked)
	assert.Contains(t, err.Error(), "1 large objects")

	_, err = a.Allocate(16)
	assert.ErrorIs(t, err, sizeclass.ErrClosed)
	require.NoError(t, a.Close())
}

func TestAllocator_RandomWorkload(t *testing.T) {
	a := newAllocator(t, Config{PoolBytes: 256, MaxObjectSize: 64, LiveTracking: true})
	rng := rand.New(rand.NewPCG(7, 11))

	type obj struct {
		p    unsafe.Pointer
		size int
		fill byte
	}
	var live []obj

	check := func(o obj) {
		buf := unsafe.Slice((*byte)(o.p), o.size)
		for _, b := range buf {
			require.Equal(t, o.fill, b)
		}
	}

	for step := 0; step < 20000; step++ {
		if len(live) == 0 || rng.IntN(5) < 3 {
			size := 1 + rng.IntN(96)
			p, err := a.Allocate(size)
			require.NoError(t, err)

			o := obj{p: p, size: size, fill: byte(step)}
			buf := unsafe.Slice((*byte)(p), size)
			for i := range buf {
				buf[i] = o.fill
			}
			live = append(live, o)
			continue
		}

		i := rng.IntN(len(live))
		o := live[i]
		check(o)
		require.NoError(t, a.Deallocate(o.p, o.size))
		live[i] = live[len(live)-1]
		live = live[:len(live)-1]

		if step%1000 == 0 {
			require.NoError(t, a.Verify())
		}
	}

	// Every live object still holds its own pattern, so no two overlap.
	for _, o := range live {
		check(o)
	}
	require.NoError(t, a.Verify())

	for _, o := range live {
		require.NoError(t, a.Deallocate(o.p, o.size))
	}
	st := a.Stats()
	assert.Equal(t, 0, st.LiveBlocks())
	assert.Equal(t, 0, st.LargeObjects)
	require.NoError(t, a.Close())
}

func BenchmarkAllocator_Mixed(b *testing.B) {
	a, err := New(Config{})
	if err != nil {
		b.Fatal(err)
	}
	sizes := []int{8, 16, 24, 32, 48, 64}
	ptrs := make([]unsafe.Pointer, len(sizes))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j, s := range sizes {
			ptrs[j], _ = a.Allocate(s)
		}
		for j, s := range sizes {
			_ = a.Deallocate(ptrs[j], s)
		}
	}
}
