// Package minio provides a blobstore.Store backed by the MinIO client.
//
// It works with MinIO and other S3-compatible servers such as Ceph,
// SeaweedFS and Garage, without pulling in the AWS SDK.
//
// # Basic Usage
//
//	store, err := minioblob.Dial(minioblob.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "images",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loader, err := imgcache.New(params, imgcache.WithBlobStore(store))
//
// Blob sources then name objects relative to the configured prefix.
package minio
