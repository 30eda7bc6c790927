package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/leeforge/imgcompress/errors"
	"github.com/leeforge/imgcompress/logging"
	"github.com/leeforge/imgcompress/media/processor"
	"github.com/leeforge/imgcompress/media/storage"
	"github.com/leeforge/imgcompress/metrics"
	testkit "github.com/leeforge/imgcompress/testing"
)

// fakeCompressor returns a keep decision for every name except those in fail.
type fakeCompressor struct {
	fail  map[string]bool
	block chan struct{}
	calls atomic.Int32

	mu   sync.Mutex
	jobs []string
}

func (f *fakeCompressor) Compress(ctx context.Context, name string, class processor.SizeClass) (*processor.CompressionResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.jobs = append(f.jobs, logging.GetJobID(ctx))
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, errors.NewCanceled(ctx.Err())
		}
	}
	if f.fail[name] {
		return nil, errors.NewUnreadable(fmt.Errorf("bad %s", name))
	}
	return &processor.CompressionResult{Ratio: processor.RatioKeep, Class: class}, nil
}

func newTestProcessor(t *testing.T, opts Options, c Compressor, options ...Option) *AsyncProcessor {
	t.Helper()
	p, err := NewAsyncProcessor(opts, c, options...)
	require.NoError(t, err)
	return p
}

func TestNewAsyncProcessorRequiresCompressor(t *testing.T) {
	_, err := NewAsyncProcessor(DefaultOptions(), nil)
	assert.ErrorIs(t, err, errors.ErrInvalid)

	var typed *processor.Compressor
	_, err = NewAsyncProcessor(DefaultOptions(), typed)
	assert.ErrorIs(t, err, errors.ErrInvalid)
}

func TestAsyncProcessorStopBeforeStartFailsQueuedJobs(t *testing.T) {
	fake := &fakeCompressor{}
	p := newTestProcessor(t, Options{Workers: 1, QueueSize: 4}, fake)

	var results []JobResult
	for _, name := range []string{"a.jpg", "b.jpg"} {
		_, err := p.Submit(Job{Name: name, Class: processor.Standard, Callback: func(r JobResult) {
			results = append(results, r)
		}})
		require.NoError(t, err)
	}

	err := p.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, err, errors.ErrCanceled)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success())
		assert.ErrorIs(t, r.Error, ErrNotStarted)
	}
	assert.Zero(t, fake.calls.Load())
	assert.Zero(t, p.GetQueueSize())

	p.Start()
	_, err = p.Submit(Job{Name: "late.jpg", Class: processor.Standard})
	assert.Error(t, err)
}

func TestBatchProcessorReturnsWhenStoppedBeforeStart(t *testing.T) {
	p := newTestProcessor(t, Options{Workers: 1, QueueSize: 4}, &fakeCompressor{})
	batch := NewBatchProcessor(p)

	type outcome struct {
		results []JobResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := batch.ProcessBatch(context.Background(), []Job{
			{Name: "a.jpg", Class: processor.Miniature},
			{Name: "b.jpg", Class: processor.Miniature},
		})
		done <- outcome{results, err}
	}()

	require.Eventually(t, func() bool { return p.GetQueueSize() == 2 }, time.Second, 5*time.Millisecond)
	require.Error(t, p.Stop(context.Background()))

	select {
	case o := <-done:
		require.NoError(t, o.err)
		require.Len(t, o.results, 2)
		assert.ErrorIs(t, o.results[0].Error, ErrNotStarted)
		assert.ErrorIs(t, o.results[1].Error, ErrNotStarted)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not return after stop")
	}
}

func TestAsyncProcessorRunsJobs(t *testing.T) {
	fake := &fakeCompressor{}
	p := newTestProcessor(t, Options{Workers: 2, QueueSize: 10}, fake)
	p.Start()

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := map[string]JobResult{}
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		wg.Add(1)
		_, err := p.Submit(Job{Name: name, Class: processor.Miniature, Callback: func(r JobResult) {
			defer wg.Done()
			mu.Lock()
			got[r.Name] = r
			mu.Unlock()
		}})
		require.NoError(t, err)
	}
	wg.Wait()
	require.NoError(t, p.Stop(context.Background()))

	assert.Len(t, got, 3)
	for _, r := range got {
		assert.True(t, r.Success())
		assert.NotEmpty(t, r.JobID)
		assert.Equal(t, processor.Miniature, r.Result.Class)
	}
	assert.Equal(t, int32(3), fake.calls.Load())
}

func TestAsyncProcessorPropagatesJobID(t *testing.T) {
	fake := &fakeCompressor{}
	p := newTestProcessor(t, Options{Workers: 1, QueueSize: 1}, fake)
	p.Start()

	done := make(chan JobResult, 1)
	id, err := p.Submit(Job{ID: "job-7", Name: "a.jpg", Class: processor.Standard, Callback: func(r JobResult) { done <- r }})
	require.NoError(t, err)
	assert.Equal(t, "job-7", id)

	r := <-done
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, "job-7", r.JobID)
	assert.Equal(t, []string{"job-7"}, fake.jobs)
}

func TestAsyncProcessorQueueFull(t *testing.T) {
	p := newTestProcessor(t, Options{Workers: 1, QueueSize: 1}, &fakeCompressor{})

	_, err := p.Submit(Job{Name: "a.jpg", Class: processor.Standard})
	require.NoError(t, err)
	_, err = p.Submit(Job{Name: "b.jpg", Class: processor.Standard})
	assert.Error(t, err)
	assert.Equal(t, 1, p.GetQueueSize())
	assert.Equal(t, 1, p.GetCapacity())
}

func TestAsyncProcessorRejectsAfterStop(t *testing.T) {
	p := newTestProcessor(t, Options{Workers: 1, QueueSize: 4}, &fakeCompressor{})
	p.Start()
	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))

	_, err := p.Submit(Job{Name: "late.jpg", Class: processor.Standard})
	assert.Error(t, err)
}

func TestAsyncProcessorStopTimeoutCancelsJobs(t *testing.T) {
	fake := &fakeCompressor{block: make(chan struct{})}
	p := newTestProcessor(t, Options{Workers: 1, QueueSize: 4, StopTimeout: 50 * time.Millisecond}, fake)
	p.Start()

	results := make(chan JobResult, 2)
	_, err := p.SubmitBatch([]Job{
		{Name: "a.jpg", Class: processor.Standard, Callback: func(r JobResult) { results <- r }},
		{Name: "b.jpg", Class: processor.Standard, Callback: func(r JobResult) { results <- r }},
	})
	require.NoError(t, err)

	err = p.Stop(context.Background())
	require.Error(t, err)

	for i := 0; i < 2; i++ {
		r := <-results
		assert.False(t, r.Success())
	}
}

func TestBatchProcessorKeepsOrder(t *testing.T) {
	fake := &fakeCompressor{fail: map[string]bool{"bad.jpg": true}}
	p := newTestProcessor(t, Options{Workers: 3, QueueSize: 10}, fake)
	p.Start()
	defer p.Stop(context.Background())

	jobs := []Job{
		{Name: "one.jpg", Class: processor.Miniature},
		{Name: "bad.jpg", Class: processor.Miniature},
		{Name: "three.jpg", Class: processor.Standard},
	}
	results, err := NewBatchProcessor(p).ProcessBatch(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "one.jpg", results[0].Name)
	assert.True(t, results[0].Success())
	assert.Equal(t, "bad.jpg", results[1].Name)
	assert.ErrorIs(t, results[1].Error, errors.ErrUnreadable)
	assert.Equal(t, "three.jpg", results[2].Name)
	assert.True(t, results[2].Success())
}

func TestJobManagerTracksProgress(t *testing.T) {
	fake := &fakeCompressor{fail: map[string]bool{"bad.jpg": true}}
	p := newTestProcessor(t, Options{Workers: 2, QueueSize: 10}, fake)
	p.Start()
	defer p.Stop(context.Background())

	jm := NewJobManager(p, 3)
	ids, err := jm.Submit([]Job{
		{Name: "a.jpg", Class: processor.Standard},
		{Name: "bad.jpg", Class: processor.Standard},
		{Name: "c.jpg", Class: processor.Standard},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, jm.Wait(ctx))

	completed, failed, total, pct := jm.GetProgress()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, total)
	assert.Equal(t, float64(100), pct)
	assert.Equal(t, 2, jm.Tracker().KeptCount())
}

func TestProgressTrackerEmpty(t *testing.T) {
	tr := NewProgressTracker(0)
	assert.Zero(t, tr.GetPercentage())
	assert.True(t, tr.Done())
}

func TestAsyncProcessorWithCompressor(t *testing.T) {
	tc := testkit.NewTestContext(t)
	tc.WriteJPEG("photo.jpg", 1200, 900, 90)
	tc.WritePNG("icon.png", 120, 90)
	tc.WriteBytes("broken.jpg", []byte("not an image"))

	logger, logs := testkit.ObservedLogger(zapcore.InfoLevel)
	collector := metrics.NewCollector()
	c, err := processor.NewCompressor(
		storage.NewFileSource(tc.Dir()),
		processor.Options{ScratchDir: t.TempDir()},
		processor.WithMetrics(collector),
	)
	require.NoError(t, err)

	p := newTestProcessor(t, Options{Workers: 2, QueueSize: 8}, c, WithLogger(logger), WithMetrics(collector))
	p.Start()

	results, err := NewBatchProcessor(p).ProcessBatch(tc.Context(), []Job{
		{ID: "photo", Name: "photo.jpg", Class: processor.Miniature},
		{ID: "icon", Name: "icon.png", Class: processor.Miniature},
		{ID: "broken", Name: "broken.jpg", Class: processor.Miniature},
	})
	require.NoError(t, err)
	require.NoError(t, p.Stop(tc.Context()))

	require.True(t, results[0].Success())
	assert.Equal(t, uint32(2), results[0].Result.SampleFactor)
	assert.Equal(t, uint32(300), results[0].Result.Image.ShortEdge())
	assert.NotEmpty(t, results[0].Result.ScratchPath)

	require.True(t, results[1].Success())
	assert.Empty(t, results[1].Result.ScratchPath)

	assert.ErrorIs(t, results[2].Error, errors.ErrUnreadable)

	// The worker logger reaches the compressor through the job context.
	classified := logs.FilterMessage("compression classified").All()
	require.Len(t, classified, 2)
	for _, e := range classified {
		assert.Contains(t, []string{"photo", "icon"}, e.ContextMap()["job_id"])
	}

	ok := collector.GetMetric("queue_jobs_total", map[string]string{"queue": "compress", "status": "success"})
	require.NotNil(t, ok)
	assert.Equal(t, float64(2), ok.Value)
	assert.NotNil(t, collector.GetMetric("queue_capacity", map[string]string{"queue": "compress"}))
}
