package cache

import (
	"log/slog"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/codec"
	"github.com/hupe1980/imgcache/internal/fs"
	"github.com/opencontainers/go-digest"
)

type options struct {
	logger         *slog.Logger
	decoder        bitmap.Decoder
	samplePolicy   bitmap.SamplePolicy
	fs             fs.FileSystem
	freeSpace      func(dir string) (uint64, error)
	journalCodec   codec.Codec
	keyDigest      digest.Algorithm
	memoryLimit    int64
	onEvict        func(key string)
	onHashFallback func(alg digest.Algorithm)
}

func defaultOptions() options {
	return options{
		logger:       slog.New(slog.DiscardHandler),
		decoder:      bitmap.StdDecoder{},
		samplePolicy: bitmap.DefaultSamplePolicy,
		fs:           fs.Default,
		freeSpace:    fs.FreeSpace,
		journalCodec: codec.Default,
		keyDigest:    digest.SHA256,
	}
}

// Option configures an ImageCache.
type Option func(*options)

// WithLogger sets the logger. Nil keeps the discarding default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDecoder replaces the default bitmap.StdDecoder.
func WithDecoder(d bitmap.Decoder) Option {
	return func(o *options) {
		if d != nil {
			o.decoder = d
		}
	}
}

// WithSamplePolicy selects how source images are downsampled.
func WithSamplePolicy(p bitmap.SamplePolicy) Option {
	return func(o *options) {
		o.samplePolicy = p
	}
}

// WithJournalCodec sets the codec for new disk journals. Existing journals
// keep the codec named in their header.
func WithJournalCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.journalCodec = c
		}
	}
}

// WithKeyDigest selects the digest used to name disk entries.
// Unavailable algorithms fall back to a non-cryptographic hash.
func WithKeyDigest(alg digest.Algorithm) Option {
	return func(o *options) {
		o.keyDigest = alg
	}
}

// WithFreeSpace replaces the free space check used before opening the disk tier.
func WithFreeSpace(fn func(dir string) (uint64, error)) Option {
	return func(o *options) {
		if fn != nil {
			o.freeSpace = fn
		}
	}
}

// WithFileSystem sets the filesystem used by the disk tier.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithMemoryLimit caps the pixel bytes held by the memory tier regardless
// of its KB budget. Zero means no additional limit.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithEvictionHook is called with the key of every bitmap leaving the memory tier.
func WithEvictionHook(fn func(key string)) Option {
	return func(o *options) {
		o.onEvict = fn
	}
}

// WithHashFallbackHook is called whenever a disk key is derived with the
// fallback hash because the configured digest is unavailable.
func WithHashFallbackHook(fn func(alg digest.Algorithm)) Option {
	return func(o *options) {
		o.onHashFallback = fn
	}
}
