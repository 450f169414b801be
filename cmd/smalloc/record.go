package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hupe1980/smalloc"
	"github.com/hupe1980/smalloc/blobstore"
	"github.com/hupe1980/smalloc/resource"
	"github.com/hupe1980/smalloc/testutil"
	"github.com/hupe1980/smalloc/trace"
)

type recordResult struct {
	Name        string                  `json:"name"`
	Compression string                  `json:"compression"`
	Events      int64                   `json:"events"`
	TraceBytes  int64                   `json:"trace_bytes"`
	Workload    testutil.WorkloadResult `json:"workload"`
	Allocator   smalloc.Stats           `json:"allocator"`
}

func newRecordCmd(a *app) *cobra.Command {
	var (
		name        string
		compression string
		dist        string
		ioRate      string
		seed        int64
		cfg         testutil.WorkloadConfig
		af          allocFlags
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Run a synthetic workload and store its allocation trace",
		Long: `The record command runs a seeded synthetic workload against a fresh
allocator, writes every allocation and free to a compressed trace and uploads
it to the store. The same seed always produces the same trace.

Example:
  smalloc record --ops 100000 --dist zipf --max-size 64
  smalloc record --store s3://bucket/traces --compression zstd --name nightly.smtr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := trace.ParseCompression(compression)
			if err != nil {
				return err
			}
			if cfg.Distribution, err = testutil.ParseDistribution(dist); err != nil {
				return err
			}
			limit, err := af.limit()
			if err != nil {
				return err
			}
			rate, err := parseBytes(ioRate)
			if err != nil {
				return err
			}
			if name == "" {
				name = "trace-" + uuid.NewString() + ".smtr"
			}

			rc := resource.NewController(resource.Config{
				MemoryLimitBytes:   limit,
				IOLimitBytesPerSec: rate,
			})
			res, err := runRecord(cmd.Context(), a, recordParams{
				name:        name,
				compression: c,
				seed:        seed,
				workload:    cfg,
				alloc:       af,
				rc:          rc,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, res)
			}
			a.printInfo(out, "recorded %s: %d events, %s (%s)\n",
				res.Name, res.Events, humanize.IBytes(uint64(res.TraceBytes)), res.Compression)
			a.printVerbose(out, "  allocs %d, frees %d, peak live %d, pools %d, reserved %s\n",
				res.Workload.Allocs, res.Workload.Frees+res.Workload.FinalFree, res.Workload.PeakLive,
				poolCount(res.Allocator), humanize.IBytes(uint64(res.Allocator.ReservedBytes())))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&name, "name", "", "Trace name (default trace-<uuid>.smtr)")
	fs.StringVar(&compression, "compression", "lz4", "Block compression (none, lz4, zstd)")
	fs.StringVar(&dist, "dist", "uniform", "Size distribution (uniform, zipf, fixed)")
	fs.StringVar(&ioRate, "io-rate", "0", "Upload rate limit per second, e.g. 8MiB (0 = unlimited)")
	fs.Int64Var(&seed, "seed", 1, "Workload seed")
	fs.IntVar(&cfg.Ops, "ops", 100000, "Number of operations")
	fs.IntVar(&cfg.MinSize, "min-size", 1, "Smallest allocation size")
	fs.IntVar(&cfg.MaxSize, "max-size", smalloc.DefaultMaxObjectSize, "Largest small allocation size")
	fs.Float64Var(&cfg.ZipfSkew, "zipf-skew", 1.2, "Zipf exponent for --dist zipf")
	fs.Float64Var(&cfg.FreeRatio, "free-ratio", 0.45, "Probability that a step frees a live block")
	fs.Float64Var(&cfg.LargeRatio, "large-ratio", 0, "Probability that an allocation is large")
	fs.IntVar(&cfg.LargeSize, "large-size", 0, "Size of large allocations (default 4*max-size)")
	af.register(fs)
	return cmd
}

type recordParams struct {
	name        string
	compression trace.Compression
	seed        int64
	workload    testutil.WorkloadConfig
	alloc       allocFlags
	rc          *resource.Controller
}

func runRecord(ctx context.Context, a *app, p recordParams) (recordResult, error) {
	res := recordResult{Name: p.name, Compression: p.compression.String()}

	store, err := a.store(ctx)
	if err != nil {
		return res, err
	}
	alloc, err := p.alloc.newAllocator(a, p.rc, p.alloc.source(), nil)
	if err != nil {
		return res, err
	}

	wb, err := store.Create(ctx, p.name)
	if err != nil {
		return res, errors.Join(err, alloc.Close())
	}
	tw, err := trace.NewWriter(resource.NewRateLimitedWriter(ctx, wb, p.rc), trace.WithCompression(p.compression))
	if err != nil {
		return res, errors.Join(err, discard(ctx, store, p.name, wb), alloc.Close())
	}

	rec := trace.NewRecorder(alloc, tw)
	ops := testutil.NewRNG(p.seed).Workload(p.workload)
	res.Workload, err = testutil.RunWorkload(rec, ops, testutil.RunOptions{Fill: true})
	err = errors.Join(err, rec.Close())
	if err == nil {
		err = alloc.Verify()
	}
	res.Allocator = alloc.Stats()
	err = errors.Join(err, alloc.Close())
	if err != nil {
		return res, errors.Join(err, discard(ctx, store, p.name, wb))
	}

	if err := wb.Close(); err != nil {
		return res, fmt.Errorf("upload %s: %w", p.name, err)
	}
	res.Events = tw.Events()
	res.TraceBytes = tw.BytesWritten()
	return res, nil
}

// discard drops a partially written trace.
func discard(ctx context.Context, store blobstore.BlobStore, name string, wb blobstore.WritableBlob) error {
	if ab, ok := wb.(interface{ Abort() error }); ok {
		return ab.Abort()
	}
	_ = wb.Close()
	return store.Delete(ctx, name)
}

func poolCount(st smalloc.Stats) int {
	n := 0
	for _, c := range st.Classes {
		n += c.Pools
	}
	return n
}
