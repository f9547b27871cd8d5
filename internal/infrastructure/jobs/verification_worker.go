package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"verifyflow.backend/internal/domain/entities"
	"verifyflow.backend/internal/infrastructure/metrics"
	"verifyflow.backend/internal/infrastructure/queue"
	"verifyflow.backend/internal/usecases"
	"verifyflow.backend/pkg/logger"
)

// JobSource is the queue surface the pool consumes
type JobSource interface {
	Reserve(ctx context.Context) (*entities.VerificationJob, error)
	Complete(ctx context.Context, job *entities.VerificationJob) error
	Fail(ctx context.Context, job *entities.VerificationJob, cause error) (bool, error)
	Trim(ctx context.Context) error
	Stats(ctx context.Context) (*entities.QueueStats, error)
}

// JobProcessor runs one verification job
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *entities.VerificationJob) (*entities.ProcessResult, error)
}

// WorkerConfig sizes the pool
type WorkerConfig struct {
	Concurrency     int
	RatePerSecond   float64
	Burst           int
	PollInterval    time.Duration
	JanitorInterval time.Duration
}

// VerificationWorkerPool drains the job queue with a fixed number of
// workers. Provider calls across all workers share one token bucket.
type VerificationWorkerPool struct {
	queue     JobSource
	processor JobProcessor
	cfg       WorkerConfig
	limiter   *rate.Limiter
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewVerificationWorkerPool(source JobSource, processor JobProcessor, cfg WorkerConfig) *VerificationWorkerPool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = cfg.Concurrency
	}
	return &VerificationWorkerPool{
		queue:     source,
		processor: processor,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		stop:      make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called. In-flight jobs
// finish before it returns.
func (p *VerificationWorkerPool) Start(ctx context.Context) {
	logger.Info(ctx, "Starting verification workers", zap.Int("concurrency", p.cfg.Concurrency))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	g.Go(func() error {
		p.janitor(ctx)
		return nil
	})
	_ = g.Wait()

	logger.Info(context.Background(), "Verification workers stopped")
}

func (p *VerificationWorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *VerificationWorkerPool) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		job, err := p.queue.Reserve(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error(ctx, "Failed to reserve job", zap.Int("worker", worker), zap.Error(err))
			}
			p.idle(ctx)
			continue
		}
		if job == nil {
			p.idle(ctx)
			continue
		}
		p.RunJob(ctx, job)
	}
}

func (p *VerificationWorkerPool) idle(ctx context.Context) {
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// RunJob processes a reserved job and acknowledges it. Shutdown does not
// interrupt a job once started; an expired lease covers a crash instead.
func (p *VerificationWorkerPool) RunJob(ctx context.Context, job *entities.VerificationJob) {
	jobCtx := logger.WithJob(context.WithoutCancel(ctx), job.ID, job.DocumentID)
	start := time.Now()

	result, err := p.processor.ProcessJob(jobCtx, job)
	outcome := "completed"
	switch {
	case err == nil:
		if ackErr := p.queue.Complete(jobCtx, job); ackErr != nil {
			logger.Error(jobCtx, "Failed to complete job", zap.Error(ackErr))
		}
		if result != nil && result.AlreadyProcessed {
			logger.Debug(jobCtx, "Job was already processed")
		}
	default:
		if errors.Is(err, usecases.ErrPermanentFailure) {
			err = queue.Permanent(err)
		}
		retried, failErr := p.queue.Fail(jobCtx, job, err)
		if failErr != nil {
			logger.Error(jobCtx, "Failed to record job failure", zap.Error(failErr))
		}
		outcome = "dead_letter"
		if retried {
			outcome = "retry"
		}
		logger.Warn(jobCtx, "Verification job failed",
			zap.Int("attempt", job.Attempts),
			zap.Bool("retrying", retried),
			zap.Error(err),
		)
	}

	metrics.JobsProcessed.WithLabelValues(outcome).Inc()
	metrics.JobDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (p *VerificationWorkerPool) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.JanitorInterval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep trims finished jobs and refreshes the depth gauge
func (p *VerificationWorkerPool) sweep(ctx context.Context) {
	if err := p.queue.Trim(ctx); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "Failed to trim job queue", zap.Error(err))
	}
	stats, err := p.queue.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn(ctx, "Failed to read queue stats", zap.Error(err))
		}
		return
	}
	metrics.ObserveQueue(stats.Ready, stats.Delayed, stats.Active, stats.Completed, stats.Failed)
}
