// Package cache implements the two storage tiers behind cache.ImageCache.
//
// # Memory Tier
//
// MemoryTier is a size-weighted LRU of decoded bitmaps. Capacity is a KB
// budget and every entry weighs its pixel bytes divided by 1024, at least 1.
// Keys are never overwritten. Evicted bitmaps are handed to a callback, which
// normally releases them into the reuse pool.
//
// # Disk Tier
//
// DiskTier stores encoded images in a journaled disklru.Store:
//   - Keys are hashed into filesystem-safe names
//   - Reads wait on an initialization barrier
//   - The store only opens when free space exceeds the quota
//   - Writes are synchronous and first-writer-wins
package cache
