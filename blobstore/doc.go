// Package blobstore provides storage for allocation traces.
//
// BlobStore is the interface for reading and writing named immutable blobs.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem, reads through read-only memory mappings
//   - MemoryStore: In-memory, for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Reading
//
// OpenReader returns a sequential reader over a whole blob, which is what the
// trace decoder consumes:
//
//	rc, _, err := blobstore.OpenReader(ctx, store, "traces/run-1.smtr")
//	defer rc.Close()
//	r, err := trace.NewReader(rc)
package blobstore
