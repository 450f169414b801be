package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/smalloc"
	"github.com/hupe1980/smalloc/blobstore"
)

// run executes the CLI with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRecordReplayStats(t *testing.T) {
	dir := t.TempDir()
	store := "file://" + filepath.ToSlash(dir)

	out, err := run(t, "record", "--store", store, "--name", "a.smtr", "--ops", "3000", "--dist", "zipf", "--large-ratio", "0.05", "--json")
	require.NoError(t, err)

	var rec recordResult
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "a.smtr", rec.Name)
	assert.Equal(t, "lz4", rec.Compression)
	assert.Equal(t, int64(rec.Workload.Allocs+rec.Workload.Frees+rec.Workload.FinalFree), rec.Events)
	assert.FileExists(t, filepath.Join(dir, "a.smtr"))

	_, err = run(t, "record", "--store", store, "--name", "b.smtr", "--ops", "1000", "--compression", "zstd", "--seed", "9")
	require.NoError(t, err)

	out, err = run(t, "list", "--store", store, "--json")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, []string{"a.smtr", "b.smtr"}, names)

	out, err = run(t, "stats", "a.smtr", "--store", store, "--json")
	require.NoError(t, err)
	var st traceStats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, rec.Events, st.Events)
	assert.Equal(t, st.Allocs, st.Frees)
	assert.Zero(t, st.LeftLive)
	assert.Greater(t, st.Large, int64(0))
	assert.NotEmpty(t, st.Sizes)

	out, err = run(t, "replay", "--store", store, "--parallel", "2", "--checked", "--json")
	require.NoError(t, err)
	var sum replaySummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Len(t, sum.Traces, 2)
	assert.Equal(t, "a.smtr", sum.Traces[0].Name)
	assert.Equal(t, rec.Events, sum.Traces[0].Result.Events)
	assert.Zero(t, sum.Traces[0].Result.Leaked)
	assert.Equal(t, sum.Metrics.AllocCount, sum.Metrics.FreeCount)
	assert.Greater(t, sum.PeakMemory, int64(0))

	out, err = run(t, "replay", "a.smtr", "--store", store, "--mmap")
	require.NoError(t, err)
	assert.Contains(t, out, "a.smtr")
	assert.Contains(t, out, "1 traces")
}

func TestReplay_MemoryLimit(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "record", "--store", dir, "--name", "a.smtr", "--ops", "500", "--quiet")
	require.NoError(t, err)

	_, err = run(t, "replay", "--store", dir, "--memory-limit", "1KiB")
	assert.ErrorIs(t, err, smalloc.ErrOutOfMemory)
}

func TestReplay_NoTraces(t *testing.T) {
	_, err := run(t, "replay", "--store", t.TempDir())
	assert.EqualError(t, err, "no traces to replay")
}

func TestStats_Missing(t *testing.T) {
	_, err := run(t, "stats", "missing.smtr", "--store", t.TempDir())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestRecord_InvalidFlags(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "record", "--store", dir, "--compression", "gzip")
	assert.Error(t, err)

	_, err = run(t, "record", "--store", dir, "--dist", "normal")
	assert.Error(t, err)

	_, err = run(t, "record", "--store", dir, "--memory-limit", "lots")
	assert.Error(t, err)

	_, err = run(t, "record", "--store", dir, "--log-level", "loud")
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "smalloc dev")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, "./traces", storeOptions{})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	s, err = openStore(ctx, "file:///tmp/traces", storeOptions{})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	for _, uri := range []string{"file://", "s3://", "minio://host:9000", "minio:///bucket", "gs://bucket"} {
		_, err := openStore(ctx, uri, storeOptions{})
		assert.Error(t, err, uri)
	}
}

func TestSplitBucket(t *testing.T) {
	b, p := splitBucket("bucket/a/b")
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "a/b", p)

	b, p = splitBucket("bucket")
	assert.Equal(t, "bucket", b)
	assert.Empty(t, p)
}

func TestParseBytes(t *testing.T) {
	n, err := parseBytes("64MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), n)

	n, err = parseBytes("0")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = parseBytes("-1")
	assert.Error(t, err)
}
