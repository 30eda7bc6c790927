package processor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testkit "github.com/leeforge/imgcompress/testing"
)

func TestScaledSize(t *testing.T) {
	tests := []struct {
		w, h   uint32
		target Pixels
		wantW  uint32
		wantH  uint32
	}{
		{2000, 1500, 1080, 1440, 1080},
		{1500, 2000, 1080, 1080, 1440},
		{600, 600, 300, 300, 300},
		{600, 400, 300, 450, 300},
		{5000, 2, 1, 2500, 1},
		{0, 10, 300, 0, 10},
	}

	for _, tt := range tests {
		w, h := ScaledSize(tt.w, tt.h, tt.target)
		assert.Equal(t, tt.wantW, w, "%dx%d -> %d", tt.w, tt.h, tt.target)
		assert.Equal(t, tt.wantH, h, "%dx%d -> %d", tt.w, tt.h, tt.target)
	}
}

func TestScaledSizePreservesAspect(t *testing.T) {
	for _, target := range []Pixels{300, 1080} {
		for w := uint32(target) + 1; w < 6000; w += 487 {
			for h := uint32(target) + 1; h < 6000; h += 701 {
				outW, outH := ScaledSize(w, h, target)
				assert.Equal(t, uint32(target), min(outW, outH))

				// Rounding the long edge moves the ratio by at most half a pixel.
				in := float64(w) / float64(h)
				out := float64(outW) / float64(outH)
				tol := 0.5 / float64(target) * math.Max(in, 1/in)
				assert.InDelta(t, in, out, tol+1e-9, "%dx%d", w, h)
			}
		}
	}
}

func TestRescale(t *testing.T) {
	src := newDecodedImage(testkit.Gradient(600, 400))

	out := NewUniformRescaler().Rescale(src, 300)

	require.NotNil(t, out.Pixels)
	assert.Equal(t, uint32(450), out.Width)
	assert.Equal(t, uint32(300), out.Height)
	assert.Equal(t, 450, out.Pixels.Bounds().Dx())
	assert.Equal(t, 300, out.Pixels.Bounds().Dy())
	assert.Nil(t, src.Pixels, "input must be released")
}

func TestRescaleNoopAtTarget(t *testing.T) {
	src := newDecodedImage(testkit.Gradient(300, 500))

	out := NewUniformRescaler().Rescale(src, 300)

	assert.Same(t, src, out)
	assert.NotNil(t, out.Pixels)
}
