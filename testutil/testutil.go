package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/imgcache/bitmap"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the seed the RNG was created with.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a random int in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// NoiseImage returns a w x h image of random opaque pixels.
func (r *RNG) NoiseImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r.mu.Lock()
	_, _ = r.rand.Read(img.Pix)
	r.mu.Unlock()
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// Gradient returns a deterministic w x h image whose pixels depend on their
// position, so scaled and cropped variants are distinguishable.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 0xff})
		}
	}
	return img
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// PNG encodes img as PNG and panics on failure.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Errorf("testutil: encode png: %w", err))
	}
	return buf.Bytes()
}

// JPEG encodes img as JPEG at quality and panics on failure.
func JPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(fmt.Errorf("testutil: encode jpeg: %w", err))
	}
	return buf.Bytes()
}

// GatedDecoder wraps a bitmap.Decoder and blocks Decode calls whose input is
// gated until Release is called for it.
type GatedDecoder struct {
	Decoder bitmap.Decoder

	mu      sync.Mutex
	gates   map[string]chan struct{}
	entered map[string]chan struct{}
	decodes atomic.Int64
}

// NewGatedDecoder wraps dec, or bitmap.StdDecoder if nil.
func NewGatedDecoder(dec bitmap.Decoder) *GatedDecoder {
	if dec == nil {
		dec = bitmap.StdDecoder{}
	}
	return &GatedDecoder{
		Decoder: dec,
		gates:   make(map[string]chan struct{}),
		entered: make(map[string]chan struct{}),
	}
}

// Gate makes decodes of data block until Release(data).
func (d *GatedDecoder) Gate(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gates[string(data)] = make(chan struct{})
	d.entered[string(data)] = make(chan struct{})
}

// Entered returns a channel closed once a decode of gated data started.
func (d *GatedDecoder) Entered(data []byte) <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entered[string(data)]
}

// Release unblocks decodes of data.
func (d *GatedDecoder) Release(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.gates[string(data)]; ok {
		close(ch)
		delete(d.gates, string(data))
	}
}

// Decodes returns how many Decode calls were made.
func (d *GatedDecoder) Decodes() int64 { return d.decodes.Load() }

// DecodeConfig implements bitmap.Decoder.
func (d *GatedDecoder) DecodeConfig(data []byte) (int, int, error) {
	return d.Decoder.DecodeConfig(data)
}

// Decode implements bitmap.Decoder.
func (d *GatedDecoder) Decode(data []byte, opts bitmap.DecodeOptions) (*bitmap.Bitmap, error) {
	d.decodes.Add(1)
	d.mu.Lock()
	gate := d.gates[string(data)]
	if entered, ok := d.entered[string(data)]; ok {
		select {
		case <-entered:
		default:
			close(entered)
		}
	}
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return d.Decoder.Decode(data, opts)
}

// MapFetcher serves fixed byte payloads by locator.
type MapFetcher struct {
	mu      sync.Mutex
	data    map[string][]byte
	fetches map[string]int
}

// NewMapFetcher returns a fetcher serving data.
func NewMapFetcher(data map[string][]byte) *MapFetcher {
	if data == nil {
		data = make(map[string][]byte)
	}
	return &MapFetcher{data: data, fetches: make(map[string]int)}
}

// Set serves b for locator.
func (f *MapFetcher) Set(locator string, b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[locator] = b
}

// Fetch returns the payload for locator or an error if there is none.
func (f *MapFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[locator]++
	b, ok := f.data[locator]
	if !ok {
		return nil, fmt.Errorf("testutil: no payload for %q", locator)
	}
	return b, nil
}

// Fetches returns how often locator was fetched.
func (f *MapFetcher) Fetches(locator string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[locator]
}
