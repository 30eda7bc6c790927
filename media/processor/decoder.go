package processor

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/leeforge/imgcompress/errors"
)

// DefaultMaxDecodePixels bounds a single decode to about 256 MB of NRGBA.
const DefaultMaxDecodePixels int64 = 64 * 1024 * 1024

// PixelDecoder decodes pixels at a given power-of-two sample factor.
type PixelDecoder struct {
	maxPixels int64
}

// NewPixelDecoder creates a decoder. maxPixels <= 0 selects DefaultMaxDecodePixels.
func NewPixelDecoder(maxPixels int64) *PixelDecoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxDecodePixels
	}
	return &PixelDecoder{maxPixels: maxPixels}
}

// Decode decodes data and reduces it by factor using pixel skipping. The
// factor is used as given. A single attempt is made.
func (d *PixelDecoder) Decode(data []byte, factor uint32) (img *DecodedImage, err error) {
	defer errors.Recover(&err)

	if factor == 0 || factor&(factor-1) != 0 {
		return nil, errors.NewInvalid("sample_factor", factor, "must be a power of two")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewUnreadable(err)
	}

	// The whole source is materialized before skipping, so both the source and
	// the reduced buffer count against the budget.
	srcPixels := int64(cfg.Width) * int64(cfg.Height)
	if srcPixels > d.maxPixels {
		return nil, errors.NewOutOfMemory(int64(cfg.Width), int64(cfg.Height), d.maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewUnreadable(err)
	}

	if factor == 1 {
		return newDecodedImage(imaging.Clone(src)), nil
	}

	sb := src.Bounds()
	w := max(sb.Dx()/int(factor), 1)
	h := max(sb.Dy()/int(factor), 1)

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return newDecodedImage(dst), nil
}
