// Package blobstore provides the object storage abstraction behind blob
// image sources.
//
// Store is the interface for reading named blobs. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map filled with Put, for tests and bundled assets
//   - LocalStore: a directory on the local filesystem
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with ranged and concurrent downloads
//
// # Custom Implementations
//
// Implement Store and Blob to support other backends:
//
//	type Store interface {
//	    Open(ctx, name) (Blob, error)
//	}
//
// ReadAll fetches whole blobs, splitting large ones into concurrent ranged
// reads through Blob.ReadAt.
package blobstore
