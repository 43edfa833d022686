// Package bitmap holds decoded pixel buffers and the decode side of the
// image pipeline.
//
// # Sample factor
//
// [SampleSize] picks the power-of-two downscale divisor applied while
// decoding a source for a target slot size. It is pure and cheap; callers
// read the encoded dimensions with [Decoder.DecodeConfig] first and only
// then allocate.
//
// # Buffer reuse
//
// A [Bitmap] created mutable can be reshaped in place by [Bitmap.Reconfigure]
// as long as its backing allocation is large enough. Decoders given a reuse
// candidate through [DecodeOptions] draw into it instead of allocating.
//
// # Record formats
//
// Disk records are produced by [Encode]. JPEG and PNG go through the
// standard library encoders, the raw formats store RGBA pixels compressed
// with zstd or lz4 behind a small header so that they decode without any
// quality loss.
package bitmap
