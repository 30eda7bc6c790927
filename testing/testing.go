package testing

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leeforge/imgcompress/logging"
)

// TestContext holds a per-test context and a fixture directory.
type TestContext struct {
	t      testing.TB
	ctx    context.Context
	cancel context.CancelFunc
	dir    string
}

// NewTestContext creates a context that is canceled when the test ends.
func NewTestContext(t testing.TB) *TestContext {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return &TestContext{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
		dir:    t.TempDir(),
	}
}

// Context returns the context
func (tc *TestContext) Context() context.Context {
	return tc.ctx
}

// Dir returns the fixture directory.
func (tc *TestContext) Dir() string {
	return tc.dir
}

// WriteJPEG writes a smooth gradient JPEG and returns its path.
func (tc *TestContext) WriteJPEG(name string, w, h, quality int) string {
	return tc.write(name, Gradient(w, h), func(f *os.File, img image.Image) error {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
	})
}

// WriteNoisyJPEG writes a JPEG of seeded random noise, which compresses poorly.
func (tc *TestContext) WriteNoisyJPEG(name string, w, h int, seed int64) string {
	return tc.write(name, Noise(w, h, seed), func(f *os.File, img image.Image) error {
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 100})
	})
}

// WritePNG writes a gradient PNG and returns its path.
func (tc *TestContext) WritePNG(name string, w, h int) string {
	return tc.write(name, Gradient(w, h), func(f *os.File, img image.Image) error {
		return png.Encode(f, img)
	})
}

// WriteBytes writes raw bytes and returns the path.
func (tc *TestContext) WriteBytes(name string, data []byte) string {
	tc.t.Helper()
	path := filepath.Join(tc.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		tc.t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func (tc *TestContext) write(name string, img image.Image, encode func(*os.File, image.Image) error) string {
	tc.t.Helper()
	path := filepath.Join(tc.dir, name)
	f, err := os.Create(path)
	if err != nil {
		tc.t.Fatalf("create fixture %s: %v", name, err)
	}
	defer f.Close()
	if err := encode(f, img); err != nil {
		tc.t.Fatalf("encode fixture %s: %v", name, err)
	}
	return path
}

// Gradient returns a w x h image with a diagonal color ramp.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w, 1)),
				G: uint8(y * 255 / max(h, 1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// Noise returns a w x h image of seeded random pixels.
func Noise(w, h int, seed int64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	r.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

// ObservedLogger returns a Logger whose entries can be inspected.
func ObservedLogger(level zapcore.Level) (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logging.FromZap(zap.New(core)), logs
}
