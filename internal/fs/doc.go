// Package fs provides the file system operations behind blobstore.LocalStore
// with a fault-injecting wrapper for tests.
//
//   - [LocalFS]: the os package
//   - [FaultyFS]: fails writes, syncs, closes or renames on matching files
//
// Tests inject failures like this:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".smtr", fs.Fault{FailAfterBytes: 1024})
package fs
