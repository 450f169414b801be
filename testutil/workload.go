package testutil

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrCorrupted is returned by RunWorkload when a block's contents changed
// while it was live.
var ErrCorrupted = errors.New("testutil: block contents corrupted")

// Allocator is the allocation surface exercised by RunWorkload.
type Allocator interface {
	Allocate(size int) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, size int) error
}

// Distribution selects how allocation sizes are drawn.
type Distribution int

const (
	// Uniform draws sizes uniformly from [MinSize, MaxSize].
	Uniform Distribution = iota
	// Zipfian favors small sizes: MinSize is the most frequent.
	Zipfian
	// Fixed always uses MaxSize.
	Fixed
)

func (d Distribution) String() string {
	switch d {
	case Uniform:
		return "uniform"
	case Zipfian:
		return "zipf"
	case Fixed:
		return "fixed"
	default:
		return fmt.Sprintf("Distribution(%d)", int(d))
	}
}

// ParseDistribution parses the String form of a Distribution.
func ParseDistribution(s string) (Distribution, error) {
	switch s {
	case "uniform":
		return Uniform, nil
	case "zipf":
		return Zipfian, nil
	case "fixed":
		return Fixed, nil
	default:
		return 0, fmt.Errorf("testutil: unknown distribution %q", s)
	}
}

// WorkloadConfig describes a synthetic allocation workload.
type WorkloadConfig struct {
	// Ops is the number of operations to generate.
	Ops int
	// MinSize and MaxSize bound small allocation sizes. Default: 1 and 64.
	MinSize int
	MaxSize int
	// Distribution selects how sizes are drawn.
	Distribution Distribution
	// ZipfSkew is the Zipf exponent. Default: 1.2.
	ZipfSkew float64
	// FreeRatio is the probability that an operation frees a live block
	// when one exists. Default: 0.45.
	FreeRatio float64
	// LargeRatio is the probability that an allocation uses LargeSize.
	LargeRatio float64
	// LargeSize is the size of large allocations. Default: 4*MaxSize.
	LargeSize int
}

func (c *WorkloadConfig) setDefaults() {
	if c.MinSize <= 0 {
		c.MinSize = 1
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 64
	}
	if c.MaxSize < c.MinSize {
		c.MaxSize = c.MinSize
	}
	if c.ZipfSkew <= 0 {
		c.ZipfSkew = 1.2
	}
	if c.FreeRatio <= 0 {
		c.FreeRatio = 0.45
	}
	if c.LargeSize <= 0 {
		c.LargeSize = 4 * c.MaxSize
	}
}

// Op is one workload step. For frees, Victim selects the live block
// (modulo the number of live blocks at that point).
type Op struct {
	Free   bool
	Size   int
	Victim int
}

// Workload generates a deterministic sequence of operations. Frees are only
// generated while at least one block is live.
func (r *RNG) Workload(cfg WorkloadConfig) []Op {
	cfg.setDefaults()

	var z zipfTable
	if cfg.Distribution == Zipfian {
		z = newZipfTable(cfg.MaxSize-cfg.MinSize+1, cfg.ZipfSkew)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]Op, 0, cfg.Ops)
	live := 0
	for range cfg.Ops {
		if live > 0 && r.rand.Float64() < cfg.FreeRatio {
			ops = append(ops, Op{Free: true, Victim: r.rand.Intn(live)})
			live--
			continue
		}

		var size int
		switch {
		case cfg.LargeRatio > 0 && r.rand.Float64() < cfg.LargeRatio:
			size = cfg.LargeSize
		case cfg.Distribution == Zipfian:
			size = cfg.MinSize + z.sample(r.rand.Float64())
		case cfg.Distribution == Fixed:
			size = cfg.MaxSize
		default:
			size = cfg.MinSize + r.rand.Intn(cfg.MaxSize-cfg.MinSize+1)
		}
		ops = append(ops, Op{Size: size})
		live++
	}
	return ops
}

// RunOptions configures RunWorkload.
type RunOptions struct {
	// Fill writes a pattern into every block and verifies it before free.
	Fill bool
	// KeepLive leaves blocks that are still live at the end allocated.
	KeepLive bool
}

// WorkloadResult summarizes a RunWorkload call.
type WorkloadResult struct {
	Allocs    int   `json:"allocs"`
	Frees     int   `json:"frees"`
	Bytes     int64 `json:"bytes"`
	PeakLive  int   `json:"peak_live"`
	LeftLive  int   `json:"left_live"`
	FinalFree int   `json:"final_free"`
}

type liveBlock struct {
	p    unsafe.Pointer
	size int
	tag  byte
}

// RunWorkload applies ops to a. It stops at the first allocator error.
func RunWorkload(a Allocator, ops []Op, opts RunOptions) (WorkloadResult, error) {
	var (
		res  WorkloadResult
		live []liveBlock
		seq  byte
	)

	free := func(i int) error {
		b := live[i]
		if opts.Fill && !checkPattern(b.p, b.size, b.tag) {
			return fmt.Errorf("%w: %#x (size %d)", ErrCorrupted, uintptr(b.p), b.size)
		}
		if err := a.Deallocate(b.p, b.size); err != nil {
			return err
		}
		last := len(live) - 1
		live[i] = live[last]
		live = live[:last]
		return nil
	}

	for _, op := range ops {
		if op.Free {
			if len(live) == 0 {
				continue
			}
			if err := free(op.Victim % len(live)); err != nil {
				return res, err
			}
			res.Frees++
			continue
		}

		p, err := a.Allocate(op.Size)
		if err != nil {
			return res, err
		}
		seq++
		b := liveBlock{p: p, size: op.Size, tag: seq}
		if opts.Fill {
			fillPattern(b.p, b.size, b.tag)
		}
		live = append(live, b)
		res.Allocs++
		res.Bytes += int64(op.Size)
		res.PeakLive = max(res.PeakLive, len(live))
	}

	res.LeftLive = len(live)
	if opts.KeepLive {
		return res, nil
	}
	for len(live) > 0 {
		if err := free(len(live) - 1); err != nil {
			return res, err
		}
		res.FinalFree++
	}
	return res, nil
}

func fillPattern(p unsafe.Pointer, size int, tag byte) {
	if size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(p), size)
	for i := range b {
		b[i] = tag ^ byte(i)
	}
}

func checkPattern(p unsafe.Pointer, size int, tag byte) bool {
	if size == 0 {
		return true
	}
	b := unsafe.Slice((*byte)(p), size)
	for i := range b {
		if b[i] != tag^byte(i) {
			return false
		}
	}
	return true
}
