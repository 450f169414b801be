package smalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y float64
	Tag  [4]byte
}

type withPointer struct {
	N    int
	Next *withPointer
}

func TestNewObject(t *testing.T) {
	a := newTestAllocator(t)

	p, err := NewObject[point](a)
	require.NoError(t, err)
	assert.Equal(t, point{}, *p)

	p.X, p.Y = 1.5, -2
	require.NoError(t, DeleteObject(a, p))

	// The reused block comes back zeroed.
	q, err := NewObject[point](a)
	require.NoError(t, err)
	assert.Equal(t, point{}, *q)
	require.NoError(t, DeleteObject(a, q))
	require.NoError(t, DeleteObject[point](a, nil))
}

func TestNewObject_PointerType(t *testing.T) {
	a := newTestAllocator(t)

	_, err := NewObject[withPointer](a)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = NewObject[string](a)
	assert.ErrorIs(t, err, ErrPointerType)
	_, err = NewSlice[[]int](a, 2)
	assert.ErrorIs(t, err, ErrPointerType)

	_, err = NewObject[[0]*int](a)
	assert.NoError(t, err)
}

func TestNewSlice(t *testing.T) {
	a := newTestAllocator(t)

	s, err := NewSlice[uint32](a, 10)
	require.NoError(t, err)
	assert.Len(t, s, 10)
	for i := range s {
		s[i] = uint32(i)
	}
	assert.True(t, a.Owns(unsafePointer(s)))
	require.NoError(t, DeleteSlice(a, s[:2]))

	big, err := NewSlice[uint64](a, 100)
	require.NoError(t, err)
	assert.False(t, a.Owns(unsafePointer(big)))
	require.NoError(t, DeleteSlice(a, big))

	empty, err := NewSlice[byte](a, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
	require.NoError(t, DeleteSlice(a, empty))

	_, err = NewSlice[byte](a, -1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	assert.Equal(t, 0, a.Stats().LiveBlocks())
	assert.Equal(t, 0, a.Stats().LargeObjects)
}

func TestTypedHelpers_Locked(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	l := NewLocked(a)
	defer l.Close()

	p, err := NewObject[point](l)
	require.NoError(t, err)
	require.NoError(t, DeleteObject(l, p))
}
