// Package blockpool implements a fixed-capacity pool of same-size blocks.
//
// A Pool owns one contiguous buffer of blockSize*blocks bytes. Unused blocks
// form a singly linked free list whose links live inside the blocks
// themselves: the first byte of every unused block holds the index of the next
// unused block. The list head and the number of unused blocks are the only
// bookkeeping, so a pool costs two bytes plus its buffer.
//
// # Capacity
//
// The link is one byte wide, so a pool holds at most MaxBlocks (255) blocks.
// The last block initially links to index blocks, which is never dereferenced
// because the available count reaches zero first.
//
// # Block Size
//
// A Pool does not store its block size. The owning size class knows it and
// passes it to every call.
package blockpool
