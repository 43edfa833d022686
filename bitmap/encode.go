package bitmap

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"
	"strings"
)

// Format selects how a bitmap is encoded into a disk record.
type Format uint8

const (
	// FormatJPEG is lossy and drops alpha. It is the default.
	FormatJPEG Format = iota
	// FormatPNG is lossless.
	FormatPNG
	// FormatRawZstd stores RGBA pixels compressed with zstd.
	FormatRawZstd
	// FormatRawLZ4 stores RGBA pixels compressed with lz4.
	FormatRawLZ4
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 70

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatRawZstd:
		return "raw-zstd"
	case FormatRawLZ4:
		return "raw-lz4"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "raw-zstd", "zstd":
		return FormatRawZstd, nil
	case "raw-lz4", "lz4":
		return FormatRawLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compress format %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	v, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Encode serializes b in the given format. quality only applies to JPEG
// and defaults to DefaultQuality when out of range.
func Encode(b *Bitmap, format Format, quality int) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("encode %s: nil bitmap", format)
	}

	switch format {
	case FormatJPEG:
		if quality < 1 || quality > 100 {
			quality = DefaultQuality
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, b.img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), nil
	case FormatPNG:
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, b.img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), nil
	case FormatRawZstd:
		return encodeRaw(b, rawCodecZstd)
	case FormatRawLZ4:
		return encodeRaw(b, rawCodecLZ4)
	default:
		return nil, fmt.Errorf("encode: unknown format %s", format)
	}
}
