package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/smalloc"
)

const largeLabel = "large"

// PrometheusCollector implements smalloc.MetricsCollector with Prometheus
// counters and gauges.
type PrometheusCollector struct {
	maxObjectSize int
	sizeLabels    []string

	allocs      *prometheus.CounterVec
	allocBytes  prometheus.Counter
	frees       *prometheus.CounterVec
	freeBytes   prometheus.Counter
	errors      *prometheus.CounterVec
	liveBytes   prometheus.Gauge
	pools       *prometheus.CounterVec
	poolBytes   prometheus.Counter
	activePools *prometheus.GaugeVec
}

var _ smalloc.MetricsCollector = (*PrometheusCollector)(nil)

// Option configures a PrometheusCollector.
type Option func(*options)

type options struct {
	namespace     string
	maxObjectSize int
	constLabels   prometheus.Labels
}

// WithNamespace sets the metric namespace. Default: "smalloc".
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithMaxObjectSize sets the largest size that gets its own label value.
// It should match the allocator's MaxObjectSize.
func WithMaxObjectSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxObjectSize = n
		}
	}
}

// WithConstLabels attaches constant labels to every metric, e.g. an
// instance name when several allocators share a registry.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) {
		o.constLabels = labels
	}
}

// NewPrometheusCollector creates the collector and registers its metrics
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer, optFns ...Option) (*PrometheusCollector, error) {
	o := options{
		namespace:     "smalloc",
		maxObjectSize: smalloc.DefaultMaxObjectSize,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		maxObjectSize: o.maxObjectSize,
		sizeLabels:    make([]string, o.maxObjectSize+1),
		allocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "allocations_total",
			Help:        "Successful allocations by requested size",
			ConstLabels: o.constLabels,
		}, []string{"size"}),
		allocBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "allocated_bytes_total",
			Help:        "Bytes handed out by successful allocations",
			ConstLabels: o.constLabels,
		}),
		frees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "deallocations_total",
			Help:        "Successful deallocations by size",
			ConstLabels: o.constLabels,
		}, []string{"size"}),
		freeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "deallocated_bytes_total",
			Help:        "Bytes returned by successful deallocations",
			ConstLabels: o.constLabels,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "errors_total",
			Help:        "Failed allocator operations",
			ConstLabels: o.constLabels,
		}, []string{"op"}),
		liveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   o.namespace,
			Name:        "live_bytes",
			Help:        "Bytes currently allocated",
			ConstLabels: o.constLabels,
		}),
		pools: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "pool_events_total",
			Help:        "Pool lifecycle events by block size",
			ConstLabels: o.constLabels,
		}, []string{"event", "block_size"}),
		poolBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "pool_reserved_bytes_total",
			Help:        "Bytes reserved from the backing source for new pools",
			ConstLabels: o.constLabels,
		}),
		activePools: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   o.namespace,
			Name:        "active_pools",
			Help:        "Pools in service by block size",
			ConstLabels: o.constLabels,
		}, []string{"block_size"}),
	}
	for i := range c.sizeLabels {
		c.sizeLabels[i] = strconv.Itoa(i)
	}

	for _, m := range []prometheus.Collector{
		c.allocs, c.allocBytes, c.frees, c.freeBytes, c.errors,
		c.liveBytes, c.pools, c.poolBytes, c.activePools,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *PrometheusCollector) sizeLabel(size int) string {
	if size < 0 || size > c.maxObjectSize {
		return largeLabel
	}
	return c.sizeLabels[size]
}

// RecordAllocate implements smalloc.MetricsCollector.
func (c *PrometheusCollector) RecordAllocate(size int, err error) {
	if err != nil {
		c.errors.WithLabelValues("allocate").Inc()
		return
	}
	c.allocs.WithLabelValues(c.sizeLabel(size)).Inc()
	c.allocBytes.Add(float64(size))
	c.liveBytes.Add(float64(size))
}

// RecordDeallocate implements smalloc.MetricsCollector.
func (c *PrometheusCollector) RecordDeallocate(size int, err error) {
	if err != nil {
		c.errors.WithLabelValues("deallocate").Inc()
		return
	}
	c.frees.WithLabelValues(c.sizeLabel(size)).Inc()
	c.freeBytes.Add(float64(size))
	c.liveBytes.Sub(float64(size))
}

// RecordPoolCreated implements smalloc.MetricsCollector.
func (c *PrometheusCollector) RecordPoolCreated(blockSize, bytes int) {
	l := c.sizeLabel(blockSize)
	c.pools.WithLabelValues("created", l).Inc()
	c.poolBytes.Add(float64(bytes))
	c.activePools.WithLabelValues(l).Inc()
}

// RecordPoolReused implements smalloc.MetricsCollector.
func (c *PrometheusCollector) RecordPoolReused(blockSize int) {
	l := c.sizeLabel(blockSize)
	c.pools.WithLabelValues("reused", l).Inc()
	c.activePools.WithLabelValues(l).Inc()
}

// RecordPoolEmptied implements smalloc.MetricsCollector.
func (c *PrometheusCollector) RecordPoolEmptied(blockSize int) {
	l := c.sizeLabel(blockSize)
	c.pools.WithLabelValues("emptied", l).Inc()
	c.activePools.WithLabelValues(l).Dec()
}
