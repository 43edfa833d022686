package bitmap

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Formats understood by StdDecoder.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned for corrupt or unknown image data.
var ErrUnsupported = errors.New("bitmap: unsupported or corrupt image data")

// DecodeOptions controls a single decode.
type DecodeOptions struct {
	// SampleSize is the power-of-two downscale divisor. Values < 1 mean 1.
	SampleSize int

	// Reuse is a candidate buffer to decode into. It is used only if its
	// allocation is large enough; otherwise a new buffer is allocated.
	Reuse *Bitmap

	// Mutable marks the result as reusable. Implied when Reuse is set.
	Mutable bool
}

// Decoder turns encoded bytes into bitmaps.
type Decoder interface {
	// DecodeConfig returns the encoded dimensions without decoding pixels.
	DecodeConfig(data []byte) (width, height int, err error)

	// Decode decodes data, downsampling by opts.SampleSize.
	Decode(data []byte, opts DecodeOptions) (*Bitmap, error)
}

// StdDecoder decodes GIF, JPEG, PNG, BMP, TIFF, WebP and raw records.
type StdDecoder struct {
	// Scaler is used when downsampling. Defaults to xdraw.ApproxBiLinear.
	Scaler xdraw.Scaler
}

var _ Decoder = StdDecoder{}

// DecodeConfig implements Decoder.
func (StdDecoder) DecodeConfig(data []byte) (int, int, error) {
	if isRaw(data) {
		w, h, err := rawConfig(data)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return w, h, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Decode implements Decoder.
func (d StdDecoder) Decode(data []byte, opts DecodeOptions) (*Bitmap, error) {
	var src image.Image
	if isRaw(data) {
		rgba, err := decodeRaw(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		src = rgba
	} else {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		src = img
	}

	sample := max(opts.SampleSize, 1)
	sb := src.Bounds()
	w := max(sb.Dx()/sample, 1)
	h := max(sb.Dy()/sample, 1)

	var dst *Bitmap
	if opts.Reuse != nil && opts.Reuse.Reconfigure(w, h) {
		dst = opts.Reuse
	} else {
		dst = New(w, h)
	}
	dst.SetMutable(opts.Mutable || opts.Reuse != nil)

	if w == sb.Dx() && h == sb.Dy() {
		xdraw.Copy(dst.img, image.Point{}, src, sb, xdraw.Src, nil)
		return dst, nil
	}

	scaler := d.Scaler
	if scaler == nil {
		scaler = xdraw.ApproxBiLinear
	}
	scaler.Scale(dst.img, dst.img.Rect, src, sb, xdraw.Src, nil)
	return dst, nil
}
