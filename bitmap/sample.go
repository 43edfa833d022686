package bitmap

import "math"

// SamplePolicy selects between the sample factor variants in use.
type SamplePolicy struct {
	// MinFactor is the smallest factor ever returned. Rounded down to a
	// power of two; values below 1 mean 1.
	MinFactor int

	// LimitPixels keeps increasing the ratio while the decoded pixel count
	// would exceed twice the requested pixel count. This matters for
	// extreme aspect ratios such as panoramas.
	LimitPixels bool
}

var (
	// DefaultSamplePolicy never downsamples sources that already fit and
	// applies the pixel-count limit.
	DefaultSamplePolicy = SamplePolicy{MinFactor: 1, LimitPixels: true}

	// PooledSamplePolicy always decodes at half resolution or less.
	PooledSamplePolicy = SamplePolicy{MinFactor: 2, LimitPixels: true}
)

// SampleSize returns the power-of-two downsample factor for decoding a
// srcW x srcH image for a dstW x dstH target.
//
// Sources that already fit within the target short-circuit to the policy
// minimum without the pixel-count pass.
func SampleSize(srcW, srcH, dstW, dstH int, policy SamplePolicy) int {
	minFactor := floorPow2(max(policy.MinFactor, 1))

	if dstW <= 0 || dstH <= 0 || (srcW <= dstW && srcH <= dstH) {
		return minFactor
	}

	heightRatio := roundRatio(srcH, dstH)
	widthRatio := roundRatio(srcW, dstW)

	// The smaller ratio keeps both decoded dimensions at or above the target.
	ratio := max(min(heightRatio, widthRatio), 1)

	if policy.LimitPixels {
		totalPixels := float64(srcW) * float64(srcH)
		pixelCap := 2 * float64(dstW) * float64(dstH)
		for totalPixels/float64(ratio*ratio) > pixelCap {
			ratio++
		}
	}

	return max(floorPow2(ratio), minFactor)
}

func roundRatio(src, dst int) int {
	return int(math.Round(float64(src) / float64(dst)))
}

// floorPow2 returns the largest power of two <= n, for n >= 1.
func floorPow2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
