package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0o755))

	f, err := lfs.CreateTemp(dir, "blob-*")
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "blob")
	require.NoError(t, lfs.Rename(f.Name(), target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, lfs.Remove(target))
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_FailAfterBytes(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("trace", Fault{FailAfterBytes: 5})

	f, err := ffs.CreateTemp(t.TempDir(), "trace-*")
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Zero(t, n)
	assert.Equal(t, int64(5), ffs.Written())
}

func TestFaultyFS_SyncCloseRename(t *testing.T) {
	tmp := t.TempDir()
	boom := os.ErrPermission

	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("sync", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("close", Fault{FailAfterBytes: -1, FailOnClose: true, Err: boom})
	ffs.AddRule("renamed", Fault{FailAfterBytes: -1, FailOnRename: true})

	f, err := ffs.CreateTemp(tmp, "sync-*")
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), ErrInjected)
	require.NoError(t, f.Close())

	f, err = ffs.CreateTemp(tmp, "close-*")
	require.NoError(t, err)
	assert.ErrorIs(t, f.Close(), boom)

	assert.ErrorIs(t, ffs.Rename(f.Name(), filepath.Join(tmp, "renamed")), ErrInjected)
	require.NoError(t, ffs.Rename(f.Name(), filepath.Join(tmp, "other")))
	require.NoError(t, ffs.Remove(filepath.Join(tmp, "other")))
}

func TestFaultyFS_NoRule(t *testing.T) {
	ffs := NewFaultyFS(nil)
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, ffs.MkdirAll(dir, 0o755))

	f, err := ffs.CreateTemp(dir, "plain-*")
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 1<<16))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}
