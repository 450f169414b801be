package sizeclass

// Observer receives pool lifecycle events. Events are emitted on the slow
// path only.
type Observer interface {
	PoolCreated(blockSize int, base uintptr, bytes int)
	PoolReused(blockSize int, base uintptr)
	PoolEmptied(blockSize int, base uintptr)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) PoolCreated(int, uintptr, int) {}
func (NoopObserver) PoolReused(int, uintptr)       {}
func (NoopObserver) PoolEmptied(int, uintptr)      {}

// Option configures an Allocator.
type Option func(*options)

type options struct {
	observer     Observer
	liveTracking bool
	degree       int
}

func defaultOptions() options {
	return options{
		observer: NoopObserver{},
		degree:   16,
	}
}

// WithObserver sets the pool lifecycle observer.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}

// WithLiveTracking enables checked mode.
func WithLiveTracking(enabled bool) Option {
	return func(opts *options) {
		opts.liveTracking = enabled
	}
}

// WithIndexDegree sets the degree of the reverse-index B-tree.
func WithIndexDegree(degree int) Option {
	return func(opts *options) {
		if degree >= 2 {
			opts.degree = degree
		}
	}
}
