package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleSize(t *testing.T) {
	noLimit := SamplePolicy{MinFactor: 1}

	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		policy                 SamplePolicy
		want                   int
	}{
		{"halves square", 100, 100, 50, 50, DefaultSamplePolicy, 2},
		{"fits", 40, 30, 50, 50, DefaultSamplePolicy, 1},
		{"fits pooled", 40, 30, 50, 50, PooledSamplePolicy, 2},
		{"zero target", 4000, 3000, 0, 100, DefaultSamplePolicy, 1},
		{"negative target pooled", 4000, 3000, 100, -1, PooledSamplePolicy, 2},
		{"wide source smaller ratio wins", 4000, 1000, 800, 800, noLimit, 1},
		{"wide source pixel limit", 4000, 1000, 800, 800, DefaultSamplePolicy, 2},
		{"panorama pixel limit", 8000, 500, 400, 400, DefaultSamplePolicy, 4},
		{"panorama no limit", 8000, 500, 400, 400, noLimit, 1},
		{"ratio three floors to two", 300, 300, 100, 100, DefaultSamplePolicy, 2},
		{"large", 4096, 4096, 256, 256, DefaultSamplePolicy, 16},
		{"tall one axis below half", 10, 1000, 100, 100, DefaultSamplePolicy, 1},
		{"min factor rounded down", 100, 100, 50, 50, SamplePolicy{MinFactor: 3}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleSize(tt.srcW, tt.srcH, tt.dstW, tt.dstH, tt.policy))
		})
	}
}

func TestSampleSize_PowerOfTwo(t *testing.T) {
	for _, policy := range []SamplePolicy{DefaultSamplePolicy, PooledSamplePolicy, {MinFactor: 1}} {
		for src := 1; src <= 5000; src += 97 {
			for dst := 1; dst <= 900; dst += 61 {
				got := SampleSize(src, src/2+1, dst, dst, policy)
				assert.Positive(t, got)
				assert.Zero(t, got&(got-1), "factor %d for %dx%d -> %d", got, src, src/2+1, dst)
			}
		}
	}
}

func TestSampleSize_NeverSmallerThanTarget(t *testing.T) {
	policy := SamplePolicy{MinFactor: 1}
	for dstW := 10; dstW <= 200; dstW += 37 {
		for dstH := 10; dstH <= 200; dstH += 41 {
			for kw := 1; kw <= 8; kw++ {
				for kh := 1; kh <= 8; kh++ {
					srcW, srcH := dstW*kw, dstH*kh
					f := SampleSize(srcW, srcH, dstW, dstH, policy)
					assert.GreaterOrEqual(t, srcW/f, dstW)
					assert.GreaterOrEqual(t, srcH/f, dstH)
				}
			}
		}
	}
}

func TestFloorPow2(t *testing.T) {
	assert.Equal(t, 1, floorPow2(1))
	assert.Equal(t, 2, floorPow2(2))
	assert.Equal(t, 2, floorPow2(3))
	assert.Equal(t, 4, floorPow2(7))
	assert.Equal(t, 8, floorPow2(8))
	assert.Equal(t, 1024, floorPow2(2047))
}
