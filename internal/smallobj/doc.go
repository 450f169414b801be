// Package smallobj routes allocations to a size class per requested size.
//
// Sizes up to MaxObjectSize are served by a sizeclass.Allocator dedicated to
// that exact size, created on first use and kept in a slice sorted by block
// size. A one-entry cache for each direction skips the binary search for runs
// of the same size. Larger sizes go straight to the backing Source.
//
// Zero-size requests return a shared sentinel address that never enters a
// pool; freeing it is a no-op.
package smallobj
