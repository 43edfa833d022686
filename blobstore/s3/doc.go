// Package s3 provides a read-only Amazon S3 implementation of
// blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "images/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loader, err := imgcache.New(params, imgcache.WithBlobStore(store))
//
// # Features
//
//   - Range reads through Blob.ReadAt
//   - Concurrent part downloads through Store.Download, which the blob
//     fetcher prefers over ranged reads
package s3
