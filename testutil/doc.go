// Package testutil provides testing utilities for smalloc.
//
// This package is intended for use in tests, benchmarks and the smalloc CLI.
// It provides a seeded, thread-safe RNG and a synthetic allocation workload
// generator.
//
// # Workloads
//
//	rng := testutil.NewRNG(seed)
//	ops := rng.Workload(testutil.WorkloadConfig{Ops: 10000, MaxSize: 64})
//	res, err := testutil.RunWorkload(alloc, ops, testutil.RunOptions{Fill: true})
//
// RunWorkload writes a pattern into every block it allocates and checks it
// before the block is freed, so overlapping blocks surface as ErrCorrupted.
package testutil
