package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/smalloc/blobstore"
	"github.com/hupe1980/smalloc/trace"
)

// sizeCount is one row of a trace's size histogram.
type sizeCount struct {
	Size   int   `json:"size"`
	Allocs int64 `json:"allocs"`
}

type traceStats struct {
	Name        string      `json:"name"`
	Compression string      `json:"compression"`
	TraceBytes  int64       `json:"trace_bytes"`
	Events      int64       `json:"events"`
	Allocs      int64       `json:"allocs"`
	Frees       int64       `json:"frees"`
	AllocBytes  int64       `json:"alloc_bytes"`
	PeakLive    int64       `json:"peak_live"`
	PeakBytes   int64       `json:"peak_bytes"`
	LeftLive    int64       `json:"left_live"`
	Large       int64       `json:"large"`
	Sizes       []sizeCount `json:"sizes"`
}

func newStatsCmd(a *app) *cobra.Command {
	var maxObjectSize int

	cmd := &cobra.Command{
		Use:   "stats <trace>",
		Short: "Show statistics of a stored trace",
		Long: `The stats command decodes a trace without replaying it and reports event
counts, the peak number of live allocations and the size histogram.

Example:
  smalloc stats trace-1.smtr
  smalloc stats trace-1.smtr --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.store(ctx)
			if err != nil {
				return err
			}
			st, err := analyzeTrace(ctx, store, args[0], maxObjectSize)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, st)
			}
			if !a.quiet {
				return printTraceStats(out, st)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxObjectSize, "max-object-size", 64, "Sizes above this count as large")
	return cmd
}

func analyzeTrace(ctx context.Context, store blobstore.BlobStore, name string, maxObjectSize int) (traceStats, error) {
	st := traceStats{Name: name}

	rc, size, err := blobstore.OpenReader(ctx, store, name)
	if err != nil {
		return st, err
	}
	defer func() { _ = rc.Close() }()
	st.TraceBytes = size

	r, err := trace.NewReader(rc)
	if err != nil {
		return st, err
	}
	st.Compression = r.Header().Compression.String()

	live := make(map[uint64]int)
	hist := make(map[int]int64)
	var liveBytes int64

	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, err
		}
		st.Events++

		switch e.Op {
		case trace.OpAlloc:
			st.Allocs++
			st.AllocBytes += int64(e.Size)
			hist[e.Size]++
			if e.Size > maxObjectSize {
				st.Large++
			}
			if e.Size == 0 {
				continue
			}
			if _, dup := live[e.ID]; dup {
				return st, fmt.Errorf("%w: %d", trace.ErrDuplicateID, e.ID)
			}
			live[e.ID] = e.Size
			liveBytes += int64(e.Size)
			st.PeakLive = max(st.PeakLive, int64(len(live)))
			st.PeakBytes = max(st.PeakBytes, liveBytes)
		case trace.OpFree:
			sz, ok := live[e.ID]
			if !ok {
				return st, fmt.Errorf("%w: %d", trace.ErrUnknownID, e.ID)
			}
			delete(live, e.ID)
			liveBytes -= int64(sz)
			st.Frees++
		}
	}
	st.LeftLive = int64(len(live))

	st.Sizes = make([]sizeCount, 0, len(hist))
	for s, n := range hist {
		st.Sizes = append(st.Sizes, sizeCount{Size: s, Allocs: n})
	}
	slices.SortFunc(st.Sizes, func(a, b sizeCount) int { return a.Size - b.Size })
	return st, nil
}

func printTraceStats(w io.Writer, st traceStats) error {
	fmt.Fprintf(w, "Trace: %s (%s, %s)\n", st.Name, humanize.IBytes(uint64(st.TraceBytes)), st.Compression)
	fmt.Fprintf(w, "Events: %d (%d allocs, %d frees)\n", st.Events, st.Allocs, st.Frees)
	fmt.Fprintf(w, "Allocated: %s, large allocations: %d\n", humanize.IBytes(uint64(st.AllocBytes)), st.Large)
	fmt.Fprintf(w, "Peak live: %d allocations, %s\n", st.PeakLive, humanize.IBytes(uint64(st.PeakBytes)))
	fmt.Fprintf(w, "Live at end: %d\n\n", st.LeftLive)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SIZE\tALLOCS\tSHARE\t")
	for _, s := range st.Sizes {
		share := 0.0
		if st.Allocs > 0 {
			share = 100 * float64(s.Allocs) / float64(st.Allocs)
		}
		fmt.Fprintf(tw, "%d\t%d\t%.1f%%\t\n", s.Size, s.Allocs, share)
	}
	return tw.Flush()
}
