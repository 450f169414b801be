package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
	"unsafe"
)

// Result summarizes a replay.
type Result struct {
	Events     int64         `json:"events"`
	Allocs     int64         `json:"allocs"`
	Frees      int64         `json:"frees"`
	AllocBytes int64         `json:"alloc_bytes"`
	PeakLive   int64         `json:"peak_live"`
	PeakBytes  int64         `json:"peak_bytes"`
	Leaked     int64         `json:"leaked"`
	Duration   time.Duration `json:"duration"`
}

// OpsPerSecond returns the replay throughput.
func (r Result) OpsPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Events) / r.Duration.Seconds()
}

type liveAlloc struct {
	p    unsafe.Pointer
	size int
}

const ctxCheckInterval = 1024

// Replay applies every event of r to a. Allocations left live at the end of
// the trace are counted as leaked. Replay stops at the first error and
// returns the partial result. Every allocation still live when Replay returns
// is freed, whether or not the trace completed.
func Replay(ctx context.Context, r *Reader, a Allocator) (res Result, err error) {
	live := make(map[uint64]liveAlloc)
	var liveBytes int64

	start := time.Now()
	defer func() {
		for _, l := range live {
			if ferr := a.Deallocate(l.p, l.size); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}
		res.Duration = time.Since(start)
	}()

	for {
		if res.Events%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Events++

		switch e.Op {
		case OpAlloc:
			if _, dup := live[e.ID]; dup {
				return res, fmt.Errorf("%w: %d", ErrDuplicateID, e.ID)
			}
			p, err := a.Allocate(e.Size)
			if err != nil {
				return res, fmt.Errorf("trace: event %d: alloc %d bytes: %w", res.Events, e.Size, err)
			}
			res.Allocs++
			res.AllocBytes += int64(e.Size)
			if e.Size > 0 {
				live[e.ID] = liveAlloc{p: p, size: e.Size}
				liveBytes += int64(e.Size)
				res.PeakLive = max(res.PeakLive, int64(len(live)))
				res.PeakBytes = max(res.PeakBytes, liveBytes)
			}

		case OpFree:
			l, ok := live[e.ID]
			if !ok {
				return res, fmt.Errorf("%w: %d", ErrUnknownID, e.ID)
			}
			if l.size != e.Size {
				return res, fmt.Errorf("%w: id %d allocated with %d bytes, freed with %d", ErrInvalidTrace, e.ID, l.size, e.Size)
			}
			if err := a.Deallocate(l.p, l.size); err != nil {
				return res, fmt.Errorf("trace: event %d: free id %d: %w", res.Events, e.ID, err)
			}
			delete(live, e.ID)
			liveBytes -= int64(l.size)
			res.Frees++
		}
	}

	res.Leaked = int64(len(live))
	return res, nil
}
