package bitmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/hupe1980/imgcache/internal/conv"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Raw record layout:
//
//	[magic "IMGR"][codec uint8][pad 3][width uint32][height uint32][rawLen uint32][payload...]
//
// The payload holds tightly packed RGBA rows.
const rawHeaderSize = 20

var rawMagic = []byte("IMGR")

const (
	rawCodecStored uint8 = 0
	rawCodecZstd   uint8 = 1
	rawCodecLZ4    uint8 = 2
)

var (
	errRawHeader = errors.New("raw record too small for header")
	errRawSize   = errors.New("raw record size mismatch")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func isRaw(data []byte) bool {
	return len(data) >= rawHeaderSize && bytes.Equal(data[:4], rawMagic)
}

func tightPixels(b *Bitmap) []byte {
	w := b.Width() * BytesPerPixel
	if b.img.Stride == w {
		return b.img.Pix[:w*b.Height()]
	}
	out := make([]byte, 0, w*b.Height())
	for y := 0; y < b.Height(); y++ {
		off := y * b.img.Stride
		out = append(out, b.img.Pix[off:off+w]...)
	}
	return out
}

func encodeRaw(b *Bitmap, codec uint8) ([]byte, error) {
	pix := tightPixels(b)

	var payload []byte
	switch codec {
	case rawCodecZstd:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(pix, nil)
		zstdEncoderPool.Put(enc)
	case rawCodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(pix)))
		n, err := lz4.CompressBlock(pix, buf, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Incompressible: store the pixels as they are.
			codec = rawCodecStored
			payload = pix
			break
		}
		payload = buf[:n]
	default:
		return nil, errors.New("unknown raw codec")
	}

	pixLen, err := conv.IntToUint32(len(pix))
	if err != nil {
		return nil, fmt.Errorf("bitmap too large for raw record: %w", err)
	}
	out := make([]byte, rawHeaderSize+len(payload))
	copy(out, rawMagic)
	out[4] = codec
	binary.LittleEndian.PutUint32(out[8:], uint32(b.Width()))
	binary.LittleEndian.PutUint32(out[12:], uint32(b.Height()))
	binary.LittleEndian.PutUint32(out[16:], pixLen)
	copy(out[rawHeaderSize:], payload)
	return out, nil
}

func rawConfig(data []byte) (int, int, error) {
	if len(data) < rawHeaderSize {
		return 0, 0, errRawHeader
	}
	w, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(data[8:]))
	if err != nil {
		return 0, 0, err
	}
	h, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(data[12:]))
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

func decodeRaw(data []byte) (*image.RGBA, error) {
	w, h, err := rawConfig(data)
	if err != nil {
		return nil, err
	}
	rawLen := int(binary.LittleEndian.Uint32(data[16:]))
	if rawLen != w*h*BytesPerPixel {
		return nil, errRawSize
	}
	payload := data[rawHeaderSize:]
	pix := make([]byte, rawLen)

	switch data[4] {
	case rawCodecStored:
		if len(payload) != rawLen {
			return nil, errRawSize
		}
		copy(pix, payload)
	case rawCodecZstd:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(payload, pix[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, err
		}
		if len(decoded) != rawLen {
			return nil, errRawSize
		}
		pix = decoded
	case rawCodecLZ4:
		n, err := lz4.UncompressBlock(payload, pix)
		if err != nil {
			return nil, err
		}
		if n != rawLen {
			return nil, errRawSize
		}
	default:
		return nil, errors.New("unknown raw codec")
	}

	return &image.RGBA{
		Pix:    pix,
		Stride: w * BytesPerPixel,
		Rect:   image.Rect(0, 0, w, h),
	}, nil
}
