// Package hash provides the hashing used by the disk tier.
//
// # Store keys
//
// [KeyHasher] turns arbitrary cache keys into hex strings that are safe to
// use as file names. It prefers a go-digest algorithm (sha256 by default)
// and falls back to xxhash64 when the algorithm is not linked into the
// binary:
//
//	h := hash.NewKeyHasher(digest.SHA256, nil)
//	name := h.Key("https://example.com/cat.jpg_320_240")
//
// # CRC32-Castagnoli (CRC32C)
//
// Disk records carry a CRC32C trailer. Go's crc32 package uses SSE4.2 or
// the ARM CRC extension when available.
//
//	checksum := hash.CRC32C(data)
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
