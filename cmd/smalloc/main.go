// Command smalloc records, replays and inspects allocation traces.
//
//	smalloc record --store file://./traces --ops 100000 --dist zipf
//	smalloc replay --store s3://bucket/traces --parallel 4 --memory-limit 256MiB
//	smalloc stats trace-<id>.smtr --json
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
