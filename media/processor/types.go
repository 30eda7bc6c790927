package processor

import (
	"fmt"
	"image"
	"strings"

	"github.com/leeforge/imgcompress/errors"
)

// Pixels is a length in pixels.
type Pixels uint32

// ByteSize is a count of bytes.
type ByteSize uint64

const (
	Byte ByteSize = 1
	KiB           = 1024 * Byte
)

func (b ByteSize) String() string {
	if b >= KiB && b%KiB == 0 {
		return fmt.Sprintf("%dKiB", uint64(b/KiB))
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Ratio is the classifier's decision. It is not a percentage.
type Ratio uint16

const (
	// RatioCompress means the candidate still needs lossy recompression.
	RatioCompress Ratio = 50
	// RatioKeep means the candidate is acceptable as-is.
	RatioKeep Ratio = 1000
)

// NeedsCompression reports whether the caller should recompress.
func (r Ratio) NeedsCompression() bool {
	return r == RatioCompress
}

func (r Ratio) String() string {
	switch r {
	case RatioCompress:
		return "compress"
	case RatioKeep:
		return "keep"
	default:
		return fmt.Sprintf("Ratio(%d)", uint16(r))
	}
}

// Bucket is a resolution bucket relative to a size class's target edge.
type Bucket uint8

const (
	// BucketBelow: both axes strictly below the target edge.
	BucketBelow Bucket = iota
	// BucketAbove: both axes strictly above the target edge.
	BucketAbove
	// BucketMixed: everything else, including either axis equal to the target.
	BucketMixed
)

func (b Bucket) String() string {
	switch b {
	case BucketBelow:
		return "below"
	case BucketAbove:
		return "above"
	case BucketMixed:
		return "mixed"
	default:
		return fmt.Sprintf("Bucket(%d)", uint8(b))
	}
}

// SizeClass is a target-resolution profile with its byte ceilings. The set
// is closed: only Miniature and Standard exist.
type SizeClass struct {
	name       string
	targetEdge Pixels
	ceilings   [3]ByteSize // indexed by Bucket
}

// Standard size classes
var (
	Miniature = SizeClass{
		name:       "miniature",
		targetEdge: 300,
		ceilings:   [3]ByteSize{30 * KiB, 60 * KiB, 90 * KiB},
	}
	Standard = SizeClass{
		name:       "standard",
		targetEdge: 1080,
		ceilings:   [3]ByteSize{100 * KiB, 200 * KiB, 300 * KiB},
	}
)

// SizeClasses returns every size class.
func SizeClasses() []SizeClass {
	return []SizeClass{Miniature, Standard}
}

// ParseSizeClass resolves a class by name (case-insensitive).
func ParseSizeClass(name string) (SizeClass, error) {
	for _, c := range SizeClasses() {
		if strings.EqualFold(strings.TrimSpace(name), c.name) {
			return c, nil
		}
	}
	return SizeClass{}, errors.NewInvalid("size_class", name, "expected miniature or standard")
}

func (c SizeClass) Name() string { return c.name }

func (c SizeClass) String() string { return c.name }

// TargetEdge is the maximum width/height in pixels.
func (c SizeClass) TargetEdge() Pixels { return c.targetEdge }

// Ceiling returns the inclusive byte ceiling of a bucket.
func (c SizeClass) Ceiling(b Bucket) ByteSize {
	if int(b) >= len(c.ceilings) {
		return 0
	}
	return c.ceilings[b]
}

func (c SizeClass) valid() bool { return c.targetEdge > 0 }

// ImageBounds holds dimensions read from the header only.
type ImageBounds struct {
	Width  uint32
	Height uint32
	Format string
}

// ShortEdge returns the smaller dimension.
func (b ImageBounds) ShortEdge() uint32 {
	return min(b.Width, b.Height)
}

// DecodedImage owns a pixel buffer. A stage that hands it on must not keep
// using it; Release drops the buffer.
type DecodedImage struct {
	Width  uint32
	Height uint32
	Pixels *image.NRGBA
}

func newDecodedImage(px *image.NRGBA) *DecodedImage {
	b := px.Bounds()
	return &DecodedImage{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Pixels: px,
	}
}

// Bounds returns the image dimensions.
func (d *DecodedImage) Bounds() ImageBounds {
	return ImageBounds{Width: d.Width, Height: d.Height}
}

// ShortEdge returns the smaller dimension.
func (d *DecodedImage) ShortEdge() uint32 {
	return min(d.Width, d.Height)
}

// ByteLen is the size of the pixel buffer (4 bytes per pixel).
func (d *DecodedImage) ByteLen() int {
	if d.Pixels == nil {
		return 0
	}
	return len(d.Pixels.Pix)
}

// Release drops the pixel buffer.
func (d *DecodedImage) Release() {
	d.Pixels = nil
}

// CompressionResult is the terminal value of a Compress call.
type CompressionResult struct {
	Image *DecodedImage
	Ratio Ratio
	// ScratchPath is set when a candidate was persisted and kept.
	ScratchPath string

	Class        SizeClass
	Source       ImageBounds
	SampleFactor uint32
	Rescaled     bool
	Bucket       Bucket
	EncodedSize  ByteSize

	discard func(string) error
}

// Discard removes the scratch artifact, if any.
func (r *CompressionResult) Discard() error {
	if r.ScratchPath == "" || r.discard == nil {
		return nil
	}
	if err := r.discard(r.ScratchPath); err != nil {
		return err
	}
	r.ScratchPath = ""
	return nil
}
