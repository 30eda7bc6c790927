package processor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/imgcompress/errors"
	"github.com/leeforge/imgcompress/logging"
	"github.com/leeforge/imgcompress/media/storage"
	"github.com/leeforge/imgcompress/metrics"
)

// Stage names a state of the compression state machine.
type Stage string

const (
	StageStart    Stage = "START"
	StageProbe    Stage = "PROBE_BOUNDS"
	StageSelect   Stage = "SELECT_SAMPLE"
	StageDecode   Stage = "DECODE"
	StageRescale  Stage = "RESCALE"
	StagePersist  Stage = "PERSIST"
	StageClassify Stage = "CLASSIFY"
	StageDone     Stage = "DONE"
	StageFailed   Stage = "FAILED"
)

// Options configures a Compressor.
type Options struct {
	// ScratchDir receives persisted candidates. Empty selects a temp subdirectory.
	ScratchDir string `mapstructure:"scratch-dir" json:"scratchDir" yaml:"scratch-dir"`
	// DiscardScratch deletes the candidate right after it is measured.
	DiscardScratch bool `mapstructure:"discard-scratch" json:"discardScratch" yaml:"discard-scratch"`
	// MaxDecodePixels caps the pixel count of a single decode.
	MaxDecodePixels int64 `mapstructure:"max-decode-pixels" json:"maxDecodePixels" yaml:"max-decode-pixels" default:"67108864" validate:"gte=0"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{MaxDecodePixels: DefaultMaxDecodePixels}
}

// Compressor runs the probe, subsample, rescale, measure and classify pipeline.
// It holds no per-call state and is safe for concurrent use.
type Compressor struct {
	source    storage.Source
	scratch   *storage.ScratchDir
	probe     BoundsProbe
	decoder   *PixelDecoder
	rescaler  UniformRescaler
	persister ArtifactPersister
	discard   bool

	logger  logging.Logger
	metrics *metrics.Collector
}

// CompressorOption customizes a Compressor.
type CompressorOption func(*Compressor)

// WithLogger sets the base logger. A logger stored in the call context wins.
func WithLogger(l logging.Logger) CompressorOption {
	return func(c *Compressor) {
		c.logger = l
	}
}

// WithMetrics records stage timings and decisions into m.
func WithMetrics(m *metrics.Collector) CompressorOption {
	return func(c *Compressor) {
		c.metrics = m
	}
}

// WithRescaler replaces the default Lanczos3 rescaler.
func WithRescaler(r UniformRescaler) CompressorOption {
	return func(c *Compressor) {
		c.rescaler = r
	}
}

// NewCompressor creates a Compressor reading from src.
func NewCompressor(src storage.Source, opts Options, options ...CompressorOption) (*Compressor, error) {
	if src == nil {
		return nil, errors.NewInvalid("source", nil, "source is required")
	}
	if opts.MaxDecodePixels < 0 {
		return nil, errors.NewInvalid("max_decode_pixels", opts.MaxDecodePixels, "must not be negative")
	}

	scratch, err := storage.NewScratchDir(opts.ScratchDir)
	if err != nil {
		return nil, errors.NewWriteFailed(opts.ScratchDir, err)
	}

	c := &Compressor{
		source:   src,
		scratch:  scratch,
		decoder:  NewPixelDecoder(opts.MaxDecodePixels),
		rescaler: NewUniformRescaler(),
		discard:  opts.DiscardScratch,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// ScratchDir returns the directory candidates are persisted into.
func (c *Compressor) ScratchDir() *storage.ScratchDir {
	return c.scratch
}

// Compress runs the pipeline for one source file. It blocks until done and
// checks ctx between stages. Any stage failure is terminal: no result is
// returned and no ratio is defaulted.
func (c *Compressor) Compress(ctx context.Context, name string, class SizeClass) (*CompressionResult, error) {
	if !class.valid() {
		return nil, errors.NewInvalid("size_class", class.Name(), "unknown size class")
	}

	run := &compressRun{
		c:     c,
		log:   c.loggerFor(ctx, name, class),
		stage: StageStart,
	}
	res, err := run.execute(ctx, name, class)
	if err != nil {
		failedAt := run.stage
		appErr := errors.FromError(err).WithDetail("stage", string(failedAt))
		run.transition(StageFailed)
		run.log.Warn("compression failed",
			zap.String("stage", string(failedAt)),
			zap.String("error_type", string(appErr.Type)),
			zap.Error(err))
		return nil, appErr
	}
	run.transition(StageDone)
	return res, nil
}

// loggerFor prefers a logger stored in ctx, then the configured one, then the global.
func (c *Compressor) loggerFor(ctx context.Context, name string, class SizeClass) logging.Logger {
	base, ok := logging.Lookup(ctx)
	if !ok {
		base = c.logger
	}
	if base == nil {
		base = logging.Global()
	}
	fields := []zap.Field{zap.String("class", class.Name())}
	if logging.GetSource(ctx) == "" {
		fields = append(fields, zap.String("source", name))
	}
	return logging.WithContext(base, ctx).Named("compressor").With(fields...)
}

// compressRun carries the state of one Compress call.
type compressRun struct {
	c       *Compressor
	log     logging.Logger
	stage   Stage
	scratch string
}

func (r *compressRun) transition(stage Stage) {
	r.log.Debug("stage transition", zap.String("from", string(r.stage)), zap.String("to", string(stage)))
	r.stage = stage
}

// enter moves to stage unless the call has been canceled.
func (r *compressRun) enter(ctx context.Context, stage Stage) error {
	r.transition(stage)
	if err := ctx.Err(); err != nil {
		return errors.NewCanceled(err)
	}
	return nil
}

func (r *compressRun) observe(stage Stage, start time.Time, err error) {
	if r.c.metrics != nil {
		r.c.metrics.RecordStage(string(stage), time.Since(start), err)
	}
}

func (r *compressRun) execute(ctx context.Context, name string, class SizeClass) (res *CompressionResult, err error) {
	defer func() {
		// No partial results: a persisted candidate is removed on failure.
		if err != nil && r.scratch != "" {
			_ = r.c.scratch.Remove(r.scratch)
		}
	}()

	target := class.TargetEdge()

	if err := r.enter(ctx, StageProbe); err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := r.c.source.ReadFile(ctx, name)
	if err != nil {
		r.observe(StageProbe, start, err)
		return nil, errors.NewReadFailed(name, err)
	}
	bounds, err := r.c.probe.Probe(data)
	r.observe(StageProbe, start, err)
	if err != nil {
		return nil, err
	}
	r.log.Debug("probed bounds",
		zap.Uint32("width", bounds.Width),
		zap.Uint32("height", bounds.Height),
		zap.String("format", bounds.Format),
		zap.Int("bytes", len(data)))

	if err := r.enter(ctx, StageSelect); err != nil {
		return nil, err
	}
	factor := SelectSampleSize(bounds, target)

	if err := r.enter(ctx, StageDecode); err != nil {
		return nil, err
	}
	start = time.Now()
	img, err := r.c.decoder.Decode(data, factor)
	r.observe(StageDecode, start, err)
	if err != nil {
		return nil, err
	}
	r.log.Debug("decoded",
		zap.Uint32("sample_factor", factor),
		zap.Uint32("width", img.Width),
		zap.Uint32("height", img.Height))

	// Only a subsampled decode is brought to the exact target; this may scale up.
	rescaled := false
	if factor > 1 && img.ShortEdge() != uint32(target) {
		if err := r.enter(ctx, StageRescale); err != nil {
			return nil, err
		}
		start = time.Now()
		img = r.c.rescaler.Rescale(img, target)
		r.observe(StageRescale, start, nil)
		rescaled = true
		r.log.Debug("rescaled", zap.Uint32("width", img.Width), zap.Uint32("height", img.Height))
	}

	// Untouched pixels are measured by the source itself; anything resampled
	// is re-encoded and measured on disk.
	encoded := ByteSize(len(data))
	if factor > 1 {
		if err := r.enter(ctx, StagePersist); err != nil {
			return nil, err
		}
		start = time.Now()
		path, size, err := r.c.persister.Persist(img, r.c.scratch)
		r.observe(StagePersist, start, err)
		if err != nil {
			return nil, err
		}
		r.scratch = path
		encoded = size
	}

	if err := r.enter(ctx, StageClassify); err != nil {
		return nil, err
	}
	ratio, bucket := classify(img.Bounds(), encoded, class)
	if r.c.metrics != nil {
		r.c.metrics.RecordDecision(class.Name(), bucket.String(), int(ratio), int64(encoded))
	}

	scratchPath := r.scratch
	if r.c.discard && scratchPath != "" {
		if err := r.c.scratch.Remove(scratchPath); err != nil {
			r.log.Warn("failed to discard scratch artifact", zap.String("path", scratchPath), zap.Error(err))
		}
		scratchPath = ""
	}

	r.log.Info("compression classified",
		zap.Uint32("sample_factor", factor),
		zap.Bool("rescaled", rescaled),
		zap.Uint32("width", img.Width),
		zap.Uint32("height", img.Height),
		zap.String("bucket", bucket.String()),
		zap.Uint64("encoded_bytes", uint64(encoded)),
		zap.Uint64("ceiling_bytes", uint64(class.Ceiling(bucket))),
		zap.Uint16("ratio", uint16(ratio)))

	return &CompressionResult{
		Image:        img,
		Ratio:        ratio,
		ScratchPath:  scratchPath,
		Class:        class,
		Source:       bounds,
		SampleFactor: factor,
		Rescaled:     rescaled,
		Bucket:       bucket,
		EncodedSize:  encoded,
		discard:      r.c.scratch.Remove,
	}, nil
}
