package bitmap

import (
	"image"
	"image/draw"
)

// BytesPerPixel is the footprint of one RGBA pixel.
const BytesPerPixel = 4

// Bitmap is a decoded RGBA pixel buffer.
//
// A mutable bitmap may be handed back to the decoder for reuse once nothing
// displays it anymore. Immutable bitmaps are never reused.
type Bitmap struct {
	img     *image.RGBA
	mutable bool
}

// New allocates a mutable bitmap of the given size.
func New(width, height int) *Bitmap {
	return &Bitmap{
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
		mutable: true,
	}
}

// FromImage copies img into a new immutable bitmap.
// An *image.RGBA with origin (0,0) is adopted without copying.
func FromImage(img image.Image) *Bitmap {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return &Bitmap{img: rgba}
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return &Bitmap{img: dst}
}

// Image returns the underlying RGBA image.
func (b *Bitmap) Image() *image.RGBA { return b.img }

// Width returns the pixel width.
func (b *Bitmap) Width() int { return b.img.Rect.Dx() }

// Height returns the pixel height.
func (b *Bitmap) Height() int { return b.img.Rect.Dy() }

// Mutable reports whether the buffer may be reshaped and reused.
func (b *Bitmap) Mutable() bool { return b.mutable }

// SetMutable marks the bitmap as reusable or not.
func (b *Bitmap) SetMutable(mutable bool) { b.mutable = mutable }

// RowBytes returns the stride in bytes.
func (b *Bitmap) RowBytes() int { return b.img.Stride }

// ByteCount returns the number of bytes used by the visible pixels.
// Falls back to stride times height when the pixel slice is not populated.
func (b *Bitmap) ByteCount() int {
	if b.img.Pix != nil {
		return len(b.img.Pix)
	}
	return b.img.Stride * b.Height()
}

// AllocationByteCount returns the size of the backing allocation, which can
// exceed ByteCount after the bitmap has been reconfigured to a smaller size.
func (b *Bitmap) AllocationByteCount() int {
	return cap(b.img.Pix)
}

// Reconfigure reshapes a mutable bitmap to width x height in place.
// It returns false if the bitmap is immutable or its allocation is too small.
func (b *Bitmap) Reconfigure(width, height int) bool {
	if !b.mutable || width <= 0 || height <= 0 {
		return false
	}
	need := width * height * BytesPerPixel
	if need > cap(b.img.Pix) {
		return false
	}
	pix := b.img.Pix[:need]
	clear(pix)
	b.img = &image.RGBA{
		Pix:    pix,
		Stride: width * BytesPerPixel,
		Rect:   image.Rect(0, 0, width, height),
	}
	return true
}

// SamePixels reports whether two bitmaps have identical dimensions and pixels.
func SamePixels(a, b *Bitmap) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return false
	}
	w := a.Width() * BytesPerPixel
	for y := 0; y < a.Height(); y++ {
		ra := a.img.Pix[y*a.img.Stride : y*a.img.Stride+w]
		rb := b.img.Pix[y*b.img.Stride : y*b.img.Stride+w]
		if string(ra) != string(rb) {
			return false
		}
	}
	return true
}
