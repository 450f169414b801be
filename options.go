package smalloc

import (
	"log/slog"

	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/internal/smallobj"
	"github.com/hupe1980/smalloc/resource"
)

const (
	// DefaultPoolBytes is the default storage budget of one pool.
	DefaultPoolBytes = smallobj.DefaultPoolBytes
	// DefaultMaxObjectSize is the default largest size served from pools.
	DefaultMaxObjectSize = smallobj.DefaultMaxObjectSize
)

type options struct {
	poolBytes        int
	maxObjectSize    int
	source           backing.Source
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
	liveTracking     bool
	indexDegree      int
}

// Option configures an Allocator.
type Option func(*options)

// WithPoolBytes sets the storage budget of one pool. The number of blocks per
// pool is poolBytes/size, clamped to 1..255.
func WithPoolBytes(n int) Option {
	return func(o *options) {
		o.poolBytes = n
	}
}

// WithMaxObjectSize sets the largest size served from pools. Larger requests
// go directly to the backing source.
func WithMaxObjectSize(n int) Option {
	return func(o *options) {
		o.maxObjectSize = n
	}
}

// WithSource sets the backing source for pool storage and large objects.
// If nil is passed, the Go heap is used.
//
// Example with anonymous mappings:
//
//	a, _ := smalloc.New(smalloc.WithSource(backing.NewMmap()))
func WithSource(src backing.Source) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithResourceController charges every backing allocation against the
// controller's memory budget. Requests over budget fail with ErrOutOfMemory.
//
// Several allocators may share one controller.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &smalloc.BasicMetricsCollector{}
//	a, _ := smalloc.New(smalloc.WithMetricsCollector(metrics))
//	// ... use a ...
//	stats := metrics.GetStats()
//	fmt.Printf("Allocations: %d, pools: %d\n", stats.AllocCount, stats.PoolsCreated)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging of pool lifecycle events and
// rejected frees. Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := smalloc.NewJSONLogger(slog.LevelDebug)
//	a, _ := smalloc.New(smalloc.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithLiveTracking enables checked mode: every outstanding block is tracked so
// double frees are reported as ErrInvalidFree instead of corrupting a free
// list. It costs a bitmap update per operation. Large objects are always
// tracked.
func WithLiveTracking(enabled bool) Option {
	return func(o *options) {
		o.liveTracking = enabled
	}
}

// WithIndexDegree sets the B-tree degree of the per-size-class address index
// used to find the pool that owns a freed pointer. Values below 2 are ignored.
func WithIndexDegree(degree int) Option {
	return func(o *options) {
		o.indexDegree = degree
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		poolBytes:        DefaultPoolBytes,
		maxObjectSize:    DefaultMaxObjectSize,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.source == nil {
		o.source = backing.NewHeap()
	}
	if o.controller != nil {
		o.source = backing.NewLimited(o.source, o.controller)
	}
	return o
}
