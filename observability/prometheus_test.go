package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/smalloc"
)

func TestPrometheusCollector_Allocator(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	a, err := smalloc.New(smalloc.WithPoolBytes(64), smalloc.WithMetricsCollector(pc))
	require.NoError(t, err)

	p, err := a.Allocate(8)
	require.NoError(t, err)
	big, err := a.Allocate(128)
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(pc.allocs.WithLabelValues("8")))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.allocs.WithLabelValues("large")))
	assert.Equal(t, 136.0, promtest.ToFloat64(pc.liveBytes))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.pools.WithLabelValues("created", "8")))
	assert.Equal(t, 64.0, promtest.ToFloat64(pc.poolBytes))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.activePools.WithLabelValues("8")))

	require.NoError(t, a.Deallocate(p, 8))
	require.NoError(t, a.Deallocate(big, 128))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.pools.WithLabelValues("emptied", "8")))
	assert.Equal(t, 0.0, promtest.ToFloat64(pc.activePools.WithLabelValues("8")))
	assert.Equal(t, 0.0, promtest.ToFloat64(pc.liveBytes))

	p, err = a.Allocate(8)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.pools.WithLabelValues("reused", "8")))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.activePools.WithLabelValues("8")))

	assert.Error(t, a.Deallocate(p, 16))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.errors.WithLabelValues("deallocate")))

	require.NoError(t, a.Deallocate(p, 8))
	require.NoError(t, a.Close())
}

func TestPrometheusCollector_Errors(t *testing.T) {
	pc, err := NewPrometheusCollector(prometheus.NewRegistry(), WithNamespace("test"), WithMaxObjectSize(16))
	require.NoError(t, err)

	pc.RecordAllocate(8, errors.New("boom"))
	pc.RecordAllocate(32, nil)
	pc.RecordAllocate(0, nil)

	assert.Equal(t, 1.0, promtest.ToFloat64(pc.errors.WithLabelValues("allocate")))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.allocs.WithLabelValues("large")))
	assert.Equal(t, 1.0, promtest.ToFloat64(pc.allocs.WithLabelValues("0")))
	assert.Equal(t, 0.0, promtest.ToFloat64(pc.allocs.WithLabelValues("8")))
}

func TestPrometheusCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	_, err = NewPrometheusCollector(reg)
	assert.Error(t, err)

	_, err = NewPrometheusCollector(reg, WithConstLabels(prometheus.Labels{"instance": "b"}))
	assert.Error(t, err, "label names must match across registrations")

	shared := prometheus.NewRegistry()
	_, err = NewPrometheusCollector(shared, WithConstLabels(prometheus.Labels{"instance": "a"}))
	require.NoError(t, err)
	_, err = NewPrometheusCollector(shared, WithConstLabels(prometheus.Labels{"instance": "b"}))
	assert.NoError(t, err)
}
