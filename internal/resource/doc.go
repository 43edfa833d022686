// Package resource arbitrates the shared budgets of the image pipeline.
//
//   - Memory: bytes of decoded bitmaps held by the memory tier (fail-fast)
//   - Decoders: concurrent decode slots (blocking, context-aware)
//   - Fetch IO: token bucket over remote downloads
//
// # Memory
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})
//	if err := rc.AcquireMemory(int64(b.ByteCount())); err != nil {
//	    // ErrMemoryLimitExceeded: do not cache this bitmap
//	}
//	defer rc.ReleaseMemory(int64(b.ByteCount()))
//
// # Decoders
//
//	if err := rc.AcquireDecoder(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseDecoder()
//
// # Fetch IO
//
//	body := resource.NewRateLimitedReader(ctx, resp.Body, rc)
//
// All methods are safe for concurrent use, and a nil *Controller turns every
// call into a no-op that grants the request.
package resource
