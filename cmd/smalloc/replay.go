package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/smalloc"
	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/blobstore"
	"github.com/hupe1980/smalloc/observability"
	"github.com/hupe1980/smalloc/resource"
	"github.com/hupe1980/smalloc/trace"
)

type replayResult struct {
	Name          string       `json:"name"`
	Result        trace.Result `json:"result"`
	OpsPerSecond  float64      `json:"ops_per_second"`
	Pools         int          `json:"pools"`
	ReservedBytes int          `json:"reserved_bytes"`
}

type replaySummary struct {
	Traces     []replayResult            `json:"traces"`
	PeakMemory int64                     `json:"peak_memory_bytes"`
	Metrics    smalloc.BasicMetricsStats `json:"metrics"`
	Duration   time.Duration             `json:"duration"`
}

// teeCollector fans metrics out to several collectors.
type teeCollector []smalloc.MetricsCollector

func (t teeCollector) RecordAllocate(size int, err error) {
	for _, c := range t {
		c.RecordAllocate(size, err)
	}
}

func (t teeCollector) RecordDeallocate(size int, err error) {
	for _, c := range t {
		c.RecordDeallocate(size, err)
	}
}

func (t teeCollector) RecordPoolCreated(blockSize, bytes int) {
	for _, c := range t {
		c.RecordPoolCreated(blockSize, bytes)
	}
}

func (t teeCollector) RecordPoolReused(blockSize int) {
	for _, c := range t {
		c.RecordPoolReused(blockSize)
	}
}

func (t teeCollector) RecordPoolEmptied(blockSize int) {
	for _, c := range t {
		c.RecordPoolEmptied(blockSize)
	}
}

func newReplayCmd(a *app) *cobra.Command {
	var (
		prefix      string
		parallel    int
		ioRate      string
		metricsAddr string
		noVerify    bool
		af          allocFlags
	)

	cmd := &cobra.Command{
		Use:   "replay [trace...]",
		Short: "Replay traces against fresh allocators",
		Long: `The replay command replays each trace against its own allocator, up to
--parallel at a time. All allocators share one backing memory budget, so a
--memory-limit that is too small makes replays fail with out of memory.
Without arguments every trace matching --prefix is replayed.

Example:
  smalloc replay trace-1.smtr trace-2.smtr
  smalloc replay --parallel 8 --memory-limit 512MiB --mmap
  smalloc replay --metrics-addr :2112`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, err := af.limit()
			if err != nil {
				return err
			}
			rate, err := parseBytes(ioRate)
			if err != nil {
				return err
			}
			if parallel <= 0 {
				return fmt.Errorf("invalid --parallel %d", parallel)
			}

			store, err := a.store(ctx)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				if names, err = store.List(ctx, prefix); err != nil {
					return err
				}
			}
			if len(names) == 0 {
				return errors.New("no traces to replay")
			}

			basic := &smalloc.BasicMetricsCollector{}
			mc := teeCollector{basic}
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				pc, err := observability.NewPrometheusCollector(reg, observability.WithMaxObjectSize(af.maxObjectSize))
				if err != nil {
					return err
				}
				mc = append(mc, pc)
				stop := serveMetrics(metricsAddr, reg)
				defer stop()
			}

			rc := resource.NewController(resource.Config{
				MemoryLimitBytes:     limit,
				MaxBackgroundWorkers: int64(parallel),
				IOLimitBytesPerSec:   rate,
			})

			start := time.Now()
			results, err := replayAll(ctx, a, store, names, replayParams{
				alloc:  af,
				rc:     rc,
				src:    af.source(),
				mc:     mc,
				verify: !noVerify,
			})
			if err != nil {
				return err
			}
			summary := replaySummary{
				Traces:     results,
				PeakMemory: rc.PeakMemoryUsage(),
				Metrics:    basic.GetStats(),
				Duration:   time.Since(start),
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, summary)
			}
			if !a.quiet {
				return printReplayTable(out, summary)
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&prefix, "prefix", "", "Replay traces with this prefix when no names are given")
	fs.IntVar(&parallel, "parallel", runtime.NumCPU(), "Maximum concurrent replays")
	fs.StringVar(&ioRate, "io-rate", "0", "Download rate limit per second (0 = unlimited)")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the replay")
	fs.BoolVar(&noVerify, "no-verify", false, "Skip allocator verification after each replay")
	af.register(fs)
	return cmd
}

type replayParams struct {
	alloc  allocFlags
	rc     *resource.Controller
	src    backing.Source
	mc     smalloc.MetricsCollector
	verify bool
}

func replayAll(ctx context.Context, a *app, store blobstore.BlobStore, names []string, p replayParams) ([]replayResult, error) {
	results := make([]replayResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			if err := p.rc.AcquireBackground(gctx); err != nil {
				return err
			}
			defer p.rc.ReleaseBackground()

			res, err := replayOne(gctx, a, store, name, p)
			results[i] = res
			if err != nil {
				return fmt.Errorf("replay %s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func replayOne(ctx context.Context, a *app, store blobstore.BlobStore, name string, p replayParams) (replayResult, error) {
	res := replayResult{Name: name}

	rc, _, err := blobstore.OpenReader(ctx, store, name)
	if err != nil {
		return res, err
	}
	defer func() { _ = rc.Close() }()

	tr, err := trace.NewReader(resource.NewRateLimitedReader(ctx, rc, p.rc))
	if err != nil {
		return res, err
	}

	alloc, err := p.alloc.newAllocator(a, p.rc, p.src, p.mc)
	if err != nil {
		return res, err
	}

	res.Result, err = trace.Replay(ctx, tr, alloc)
	res.OpsPerSecond = res.Result.OpsPerSecond()
	if err == nil && p.verify {
		err = alloc.Verify()
	}
	st := alloc.Stats()
	res.Pools = poolCount(st)
	res.ReservedBytes = st.ReservedBytes()

	return res, errors.Join(err, alloc.Close())
}

// serveMetrics serves reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printReplayTable(w io.Writer, s replaySummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACE\tEVENTS\tPEAK LIVE\tPEAK BYTES\tLEAKED\tPOOLS\tRESERVED\tOPS/S")
	for _, r := range s.Traces {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%d\t%s\t%.0f\n",
			r.Name, r.Result.Events, r.Result.PeakLive, humanize.IBytes(uint64(r.Result.PeakBytes)),
			r.Result.Leaked, r.Pools, humanize.IBytes(uint64(r.ReservedBytes)), r.OpsPerSecond)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d traces in %s, peak backing memory %s, pools created %d, reused %d\n",
		len(s.Traces), s.Duration.Round(time.Millisecond), humanize.IBytes(uint64(s.PeakMemory)),
		s.Metrics.PoolsCreated, s.Metrics.PoolsReused)
	return nil
}
