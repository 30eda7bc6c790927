package processor

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/leeforge/imgcompress/errors"
)

// BoundsProbe reads image dimensions from the header without decoding pixels.
type BoundsProbe struct{}

// Probe returns the dimensions of data, or an Unreadable error when data is
// not a raster image with a registered decoder.
func (BoundsProbe) Probe(data []byte) (ImageBounds, error) {
	if len(data) == 0 {
		return ImageBounds{}, errors.NewUnreadable(nil).WithMessage("empty image stream")
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return ImageBounds{}, errors.NewUnreadable(nil).
			WithMessage("stream is not an image").
			WithDetail("mime", mt.String())
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageBounds{}, errors.NewUnreadable(err).WithDetail("mime", mt.String())
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageBounds{}, errors.NewUnreadable(nil).
			WithMessage("image has empty bounds").
			WithDetail("width", cfg.Width).
			WithDetail("height", cfg.Height)
	}

	return ImageBounds{
		Width:  uint32(cfg.Width),
		Height: uint32(cfg.Height),
		Format: format,
	}, nil
}
