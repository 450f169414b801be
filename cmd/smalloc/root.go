package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hupe1980/smalloc"
	"github.com/hupe1980/smalloc/backing"
	"github.com/hupe1980/smalloc/blobstore"
	"github.com/hupe1980/smalloc/resource"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app holds the global flags shared by every command.
type app struct {
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string

	storeURI   string
	s3Region   string
	s3Endpoint string

	// openStore resolves storeURI. Tests replace it.
	openStore func(ctx context.Context, uri string, opts storeOptions) (blobstore.BlobStore, error)
}

func newRootCmd() *cobra.Command {
	a := &app{openStore: openStore}

	root := &cobra.Command{
		Use:   "smalloc",
		Short: "Record, replay and inspect allocation traces",
		Long: `smalloc drives the smalloc small-object allocator with synthetic or
recorded workloads. Traces are stored in a blob store addressed by URI:

  file:///var/lib/traces     local directory (a plain path also works)
  s3://bucket/prefix         Amazon S3 (shared AWS configuration)
  minio://host:9000/bucket   MinIO or another S3-compatible service`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress all output except errors")
	pf.BoolVar(&a.jsonOut, "json", false, "Output in JSON format")
	pf.StringVar(&a.logLevel, "log-level", "warn", "Allocator log level (debug, info, warn, error)")
	pf.StringVar(&a.storeURI, "store", "file://./traces", "Trace store URI")
	pf.StringVar(&a.s3Region, "s3-region", "", "Override the AWS region for s3:// stores")
	pf.StringVar(&a.s3Endpoint, "s3-endpoint", "", "Custom endpoint for s3:// stores")

	root.AddCommand(
		newRecordCmd(a),
		newReplayCmd(a),
		newStatsCmd(a),
		newListCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) store(ctx context.Context) (blobstore.BlobStore, error) {
	return a.openStore(ctx, a.storeURI, storeOptions{
		s3Region:   a.s3Region,
		s3Endpoint: a.s3Endpoint,
	})
}

func (a *app) logger() (*smalloc.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(a.logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	if a.verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}
	return smalloc.NewTextLogger(level), nil
}

// printInfo prints an info message if not in quiet mode.
func (a *app) printInfo(w io.Writer, format string, args ...any) {
	if !a.quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printVerbose prints a message if verbose mode is enabled.
func (a *app) printVerbose(w io.Writer, format string, args ...any) {
	if a.verbose && !a.quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// allocFlags configures the allocators built by record and replay.
type allocFlags struct {
	poolBytes     int
	maxObjectSize int
	mmap          bool
	memoryLimit   string
	liveTracking  bool
}

func (f *allocFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.poolBytes, "pool-bytes", smalloc.DefaultPoolBytes, "Storage budget of one pool")
	fs.IntVar(&f.maxObjectSize, "max-object-size", smalloc.DefaultMaxObjectSize, "Largest size served from pools")
	fs.BoolVar(&f.mmap, "mmap", false, "Back pools with anonymous memory mappings")
	fs.StringVar(&f.memoryLimit, "memory-limit", "0", "Backing memory budget, e.g. 64MiB (0 = unlimited)")
	fs.BoolVar(&f.liveTracking, "checked", false, "Track live blocks to detect double frees")
}

func (f *allocFlags) limit() (int64, error) {
	return parseBytes(f.memoryLimit)
}

func (f *allocFlags) source() backing.Source {
	if f.mmap {
		return backing.NewMmap()
	}
	return backing.NewHeap()
}

func (f *allocFlags) newAllocator(a *app, rc *resource.Controller, src backing.Source, mc smalloc.MetricsCollector) (*smalloc.Allocator, error) {
	logger, err := a.logger()
	if err != nil {
		return nil, err
	}
	return smalloc.New(
		smalloc.WithPoolBytes(f.poolBytes),
		smalloc.WithMaxObjectSize(f.maxObjectSize),
		smalloc.WithSource(src),
		smalloc.WithResourceController(rc),
		smalloc.WithMetricsCollector(mc),
		smalloc.WithLogger(logger),
		smalloc.WithLiveTracking(f.liveTracking),
	)
}
