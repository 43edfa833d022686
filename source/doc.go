// Package source holds the fetchers that turn an image locator into encoded
// bytes.
//
//   - HTTP: GET over resty with a two minute timeout and optional rate limit
//   - File: local paths
//   - Resource: files bundled in an io/fs.FS such as embed.FS
//   - Blob: names in a blobstore.Store (memory, local, MinIO, S3)
//
// Missing images are reported with ErrNotFound, non-2xx HTTP responses with
// *StatusError.
package source
