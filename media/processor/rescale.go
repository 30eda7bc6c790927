package processor

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// UniformRescaler scales an image so its shorter edge equals a target,
// applying the same factor to both axes.
type UniformRescaler struct {
	Interpolation resize.InterpolationFunction
}

// NewUniformRescaler returns a rescaler using Lanczos3 resampling.
func NewUniformRescaler() UniformRescaler {
	return UniformRescaler{Interpolation: resize.Lanczos3}
}

// ScaledSize returns the output size for a w x h input. The shorter edge is
// exactly targetEdge; the longer edge is rounded to the nearest pixel.
func ScaledSize(w, h uint32, targetEdge Pixels) (uint32, uint32) {
	short := min(w, h)
	if short == 0 || targetEdge == 0 {
		return w, h
	}
	scale := float64(targetEdge) / float64(short)

	if w <= h {
		return uint32(targetEdge), uint32(max(1, math.Round(float64(h)*scale)))
	}
	return uint32(max(1, math.Round(float64(w)*scale))), uint32(targetEdge)
}

// Rescale takes ownership of img and returns a new image. img is released.
func (r UniformRescaler) Rescale(img *DecodedImage, targetEdge Pixels) *DecodedImage {
	w, h := ScaledSize(img.Width, img.Height, targetEdge)
	if w == img.Width && h == img.Height {
		return img
	}

	interp := r.Interpolation
	scaled := resize.Resize(uint(w), uint(h), img.Pixels, interp)
	img.Release()

	px, ok := scaled.(*image.NRGBA)
	if !ok {
		px = imaging.Clone(scaled)
	}
	return newDecodedImage(px)
}
