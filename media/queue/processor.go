package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leeforge/imgcompress/errors"
	"github.com/leeforge/imgcompress/logging"
	"github.com/leeforge/imgcompress/media/processor"
	"github.com/leeforge/imgcompress/metrics"
)

// queueName 指标中的队列名
const queueName = "compress"

// Compressor 压缩执行接口，由 *processor.Compressor 实现
type Compressor interface {
	Compress(ctx context.Context, name string, class processor.SizeClass) (*processor.CompressionResult, error)
}

// Options 队列配置
type Options struct {
	Workers     int           `mapstructure:"workers" json:"workers" yaml:"workers" default:"4" validate:"gte=1"`
	QueueSize   int           `mapstructure:"queue-size" json:"queueSize" yaml:"queue-size" default:"100" validate:"gte=1"`
	StopTimeout time.Duration `mapstructure:"stop-timeout" json:"stopTimeout" yaml:"stop-timeout" default:"30s" validate:"gte=0"`
}

// DefaultOptions 默认队列配置
func DefaultOptions() Options {
	return Options{
		Workers:     4,
		QueueSize:   100,
		StopTimeout: 30 * time.Second,
	}
}

// AsyncProcessor 异步处理器
type AsyncProcessor struct {
	opts       Options
	jobQueue   chan Job
	compressor Compressor
	logger     logging.Logger
	metrics    *metrics.Collector

	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Job 压缩任务
type Job struct {
	ID       string
	Name     string
	Class    processor.SizeClass
	Callback func(result JobResult)
}

// JobResult 任务结果
type JobResult struct {
	JobID    string
	Name     string
	Result   *processor.CompressionResult
	Error    error
	Duration time.Duration
}

// Success 任务是否成功
func (r JobResult) Success() bool {
	return r.Error == nil && r.Result != nil
}

// Option 处理器选项
type Option func(*AsyncProcessor)

// WithLogger 设置日志
func WithLogger(l logging.Logger) Option {
	return func(p *AsyncProcessor) {
		p.logger = l
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(p *AsyncProcessor) {
		p.metrics = m
	}
}

// ErrNotStarted 处理器未启动即停止时，排队任务以此错误回调
var ErrNotStarted = errors.New(errors.ErrorTypeCanceled, "processor stopped before start")

// NewAsyncProcessor 创建异步处理器
func NewAsyncProcessor(opts Options, compressor Compressor, options ...Option) (*AsyncProcessor, error) {
	if compressor == nil {
		return nil, errors.NewInvalid("compressor", nil, "compressor is required")
	}
	if c, ok := compressor.(*processor.Compressor); ok && c == nil {
		return nil, errors.NewInvalid("compressor", nil, "compressor is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &AsyncProcessor{
		opts:       opts,
		jobQueue:   make(chan Job, opts.QueueSize),
		compressor: compressor,
		logger:     logging.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range options {
		opt(p)
	}
	p.logger = p.logger.Named("queue")
	return p, nil
}

// Start 启动处理器，重复调用无效
func (p *AsyncProcessor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("async processor started", zap.Int("workers", p.opts.Workers), zap.Int("queue_size", p.opts.QueueSize))
}

// worker 工作协程，队列关闭且排空后退出
func (p *AsyncProcessor) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.recordQueue()
		p.processJob(id, job)
	}
}

// processJob 处理单个任务，不重试
func (p *AsyncProcessor) processJob(worker int, job Job) {
	ctx := logging.SetJobID(p.ctx, job.ID)
	ctx = logging.SetSource(ctx, job.Name)
	ctx = logging.ToContext(ctx, p.logger.With(zap.Int("worker", worker)))

	start := time.Now()
	res, err := p.compressor.Compress(ctx, job.Name, job.Class)
	result := JobResult{
		JobID:    job.ID,
		Name:     job.Name,
		Result:   res,
		Error:    err,
		Duration: time.Since(start),
	}

	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		p.metrics.IncCounter("queue_jobs_total", map[string]string{"queue": queueName, "status": status})
	}

	// 调用回调
	if job.Callback != nil {
		job.Callback(result)
	}
}

// Submit 提交任务，队列满时立即返回错误
func (p *AsyncProcessor) Submit(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", fmt.Errorf("processor is shutting down")
	}

	select {
	case p.jobQueue <- job:
		p.recordQueue()
		return job.ID, nil
	default:
		return "", fmt.Errorf("job queue is full")
	}
}

// SubmitBatch 批量提交任务，遇到第一个错误即停止
func (p *AsyncProcessor) SubmitBatch(jobs []Job) ([]string, error) {
	ids := make([]string, 0, len(jobs))
	for i, job := range jobs {
		id, err := p.Submit(job)
		if err != nil {
			return ids, fmt.Errorf("failed to submit job %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stop 停止接收新任务并等待队列排空。超过 ctx 或 StopTimeout 时取消进行中的压缩
func (p *AsyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobQueue)
	started := p.started
	p.mu.Unlock()

	if !started {
		dropped := p.failQueued()
		p.cancel()
		if dropped > 0 {
			p.logger.Warn("async processor stopped before start, queued jobs failed", zap.Int("jobs", dropped))
			return fmt.Errorf("%d queued jobs not run: %w", dropped, ErrNotStarted)
		}
		return nil
	}

	if p.opts.StopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.StopTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("async processor stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("async processor stop timed out, pending jobs canceled")
		return fmt.Errorf("timeout waiting for jobs to complete: %w", ctx.Err())
	}
}

// failQueued 以 ErrNotStarted 回调所有排队任务，返回任务数
func (p *AsyncProcessor) failQueued() int {
	n := 0
	for job := range p.jobQueue {
		n++
		if job.Callback != nil {
			job.Callback(JobResult{JobID: job.ID, Name: job.Name, Error: ErrNotStarted})
		}
	}
	p.recordQueue()
	return n
}

// GetQueueSize 获取队列中等待的任务数
func (p *AsyncProcessor) GetQueueSize() int {
	return len(p.jobQueue)
}

// GetCapacity 获取队列容量
func (p *AsyncProcessor) GetCapacity() int {
	return cap(p.jobQueue)
}

func (p *AsyncProcessor) recordQueue() {
	if p.metrics != nil {
		p.metrics.RecordQueue(queueName, len(p.jobQueue), cap(p.jobQueue))
	}
}

// BatchProcessor 批量处理器
type BatchProcessor struct {
	processor *AsyncProcessor
}

// NewBatchProcessor 创建批量处理器
func NewBatchProcessor(processor *AsyncProcessor) *BatchProcessor {
	return &BatchProcessor{
		processor: processor,
	}
}

// ProcessBatch 批量处理，结果顺序与任务顺序一致
func (b *BatchProcessor) ProcessBatch(ctx context.Context, jobs []Job) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)

		// 为每个任务创建回调
		original := job.Callback
		job.Callback = func(result JobResult) {
			defer wg.Done()
			results[i] = result
			if original != nil {
				original(result)
			}
		}

		if _, err := b.processor.Submit(job); err != nil {
			wg.Done()
			return nil, fmt.Errorf("failed to submit job %d: %w", i, err)
		}
	}

	// 等待所有任务完成
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProgressTracker 进度追踪器
type ProgressTracker struct {
	total     int
	completed int
	failed    int
	keep      int
	mu        sync.RWMutex
}

// NewProgressTracker 创建进度追踪器
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		total: total,
	}
}

// Record 记录任务结果
func (t *ProgressTracker) Record(result JobResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !result.Success() {
		t.failed++
		return
	}
	t.completed++
	if !result.Result.Ratio.NeedsCompression() {
		t.keep++
	}
}

// GetProgress 获取进度
func (t *ProgressTracker) GetProgress() (completed, failed, total int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed, t.failed, t.total
}

// KeptCount 无需再压缩的任务数
func (t *ProgressTracker) KeptCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.keep
}

// GetPercentage 获取百分比
func (t *ProgressTracker) GetPercentage() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.total == 0 {
		return 0
	}
	return float64(t.completed+t.failed) / float64(t.total) * 100
}

// Done 是否全部完成
func (t *ProgressTracker) Done() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed+t.failed >= t.total
}

// JobManager 任务管理器
type JobManager struct {
	processor *AsyncProcessor
	tracker   *ProgressTracker
}

// NewJobManager 创建任务管理器
func NewJobManager(processor *AsyncProcessor, totalJobs int) *JobManager {
	return &JobManager{
		processor: processor,
		tracker:   NewProgressTracker(totalJobs),
	}
}

// Submit 提交任务并追踪进度
func (jm *JobManager) Submit(jobs []Job) ([]string, error) {
	wrapped := make([]Job, len(jobs))
	for i, job := range jobs {
		original := job.Callback
		job.Callback = func(result JobResult) {
			jm.tracker.Record(result)
			if original != nil {
				original(result)
			}
		}
		wrapped[i] = job
	}
	return jm.processor.SubmitBatch(wrapped)
}

// GetProgress 获取处理进度
func (jm *JobManager) GetProgress() (completed, failed, total int, percentage float64) {
	c, f, t := jm.tracker.GetProgress()
	return c, f, t, jm.tracker.GetPercentage()
}

// Tracker 返回进度追踪器
func (jm *JobManager) Tracker() *ProgressTracker {
	return jm.tracker
}

// Wait 等待所有任务完成
func (jm *JobManager) Wait(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if jm.tracker.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
