// Package imgcache loads images into display slots through a two-tier
// cache and a cancellation-safe asynchronous decode pipeline.
//
// Decoded bitmaps live in a memory tier bounded by a KB budget and in a
// persistent disk tier bounded by a byte quota. Bitmaps evicted from
// memory are kept weakly and reused as decode targets.
//
// # Quick Start
//
//	params := cache.DefaultParams(filepath.Join(os.TempDir(), "thumbs"))
//	loader, _ := imgcache.New(params, imgcache.WithLoadingImage(placeholder))
//	defer loader.Close()
//
//	loader.Load(ctx, cell, imgcache.Network("https://example.com/a.jpg"), 200, 200)
//
// # Slots
//
// A Slot is anything that shows one image at a time, such as a list cell.
// Each slot waits for at most one task. Loading a different key into a
// slot cancels the previous task, and a task writes to a slot only if it
// is still the task the slot waits for:
//
//	loader.Load(ctx, cell, a, 100, 100) // placeholder, task for a
//	loader.Load(ctx, cell, b, 100, 100) // task for a cancelled, task for b
//	                                    // cell only ever shows b
//
// Memory hits are written before Load returns. Everything else completes on
// the Dispatcher, a MainLoop owned by the loader unless WithDispatcher
// sets another one.
//
// # Sources
//
// Images come from the network (resty), the local filesystem, bundled
// resources (io/fs, e.g. embed.FS) or a blobstore.Store (memory, local
// directory, MinIO, S3). WithFetcher replaces the fetcher of any kind.
//
// # Failures
//
// Load never reports errors to the caller. Failed loads set nil content,
// which slots show as their fallback state, and are reported through the
// Logger and the MetricsCollector. A disk tier that cannot be opened leaves
// the cache working in memory only.
package imgcache
