package hash

import (
	_ "crypto/sha256" // registers the default store key digest
	_ "crypto/sha512"
	"strconv"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"
)

// KeyHasher derives filesystem-safe store keys from cache keys.
//
// The preferred digest is used when the runtime provides it. Otherwise the
// key falls back to a 64-bit xxhash, so derivation never fails.
type KeyHasher struct {
	alg        digest.Algorithm
	fallbacks  atomic.Int64
	onFallback func(alg digest.Algorithm)
}

// NewKeyHasher creates a hasher for alg. An empty alg means sha256.
// onFallback, if set, is called every time the fallback hash is used.
func NewKeyHasher(alg digest.Algorithm, onFallback func(alg digest.Algorithm)) *KeyHasher {
	if alg == "" {
		alg = digest.SHA256
	}
	return &KeyHasher{alg: alg, onFallback: onFallback}
}

// Algorithm returns the preferred digest algorithm.
func (h *KeyHasher) Algorithm() digest.Algorithm { return h.alg }

// Key returns the lowercase hex store key for key.
func (h *KeyHasher) Key(key string) string {
	if h.alg.Available() {
		return h.alg.FromString(key).Encoded()
	}
	h.fallbacks.Add(1)
	if h.onFallback != nil {
		h.onFallback(h.alg)
	}
	return Fallback(key)
}

// Fallbacks returns how many keys were derived with the fallback hash.
func (h *KeyHasher) Fallbacks() int64 { return h.fallbacks.Load() }

// Fallback is the non-cryptographic key hash: 16 hex digits of xxhash64.
func Fallback(key string) string {
	s := strconv.FormatUint(xxhash.Sum64String(key), 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
