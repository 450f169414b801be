// Package trace records and replays allocation workloads.
//
// A trace is a stream of Alloc and Free events. Every allocation gets a
// sequential ID; a Free event names the ID it releases, so a trace is
// independent of the addresses seen while recording and can be replayed
// against any allocator.
//
// # Format
//
//	header  [magic "SMTR"][version uint8][compression uint8][reserved uint16]
//	block*  [uncompressed uint32][compressed uint32][data...]
//
// A block with compressed size 0 is stored raw. Block data is a sequence of
// events, each encoded as an op byte followed by the ID and the size as
// unsigned varints. Integers in headers are little-endian.
//
// # Recording
//
//	w, _ := trace.NewWriter(f, trace.WithCompression(trace.CompressionZSTD))
//	rec := trace.NewRecorder(alloc, w)
//	p, _ := rec.Allocate(32)
//	_ = rec.Deallocate(p, 32)
//	_ = w.Close()
//
// # Replay
//
//	r, _ := trace.NewReader(f)
//	res, _ := trace.Replay(ctx, r, alloc)
package trace
