// Package minio provides a BlobStore backed by MinIO and other
// S3-compatible services such as Ceph, Garage and SeaweedFS.
//
// Traces recorded by the smalloc CLI can be stored here with a
// minio://bucket/prefix store URI:
//
//	store, err := minio.New("localhost:9000", "minioadmin", "minioadmin", "traces", "runs/", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w, err := store.Create(ctx, "run-1.smtr")
//
// An existing *minio.Client can be wrapped with NewStore.
package minio
