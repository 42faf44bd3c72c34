package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// ErrPoolStopped is returned by Enqueue when the pool is not accepting work.
var ErrPoolStopped = errors.New("worker pool is not running")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int           // concurrent jobs
	WorkerChanSize int           // per-worker buffer
	BatchSize      int           // 0 dispatches each job as soon as it is submitted
	MaxRetries     int           // runner errors retried before dead-lettering
	RetryBase      time.Duration // backoff base, doubled per retry
	DLQSize        int
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		WorkerChanSize: 100,
		BatchSize:      0,
		MaxRetries:     3,
		RetryBase:      time.Second,
		DLQSize:        100,
	}
}

// Pool executes queued jobs on a go-pkgz/pool worker group. It is the
// in-process out.JobQueue and the sink of the Redis stream consumer.
type Pool struct {
	handler *Handler
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	metrics *PoolMetrics
	log     zerolog.Logger

	// Dead Letter Queue
	dlq   chan *Message
	dlqWg sync.WaitGroup

	// Retries scheduled but not yet resubmitted.
	retryWg sync.WaitGroup

	started bool
	mu      sync.Mutex
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64
	JobsFailed     int64
	JobsRetried    int64
	AvgProcessTime int64 // milliseconds
	Workers        int32
	QueueSize      int32
}

// messageWorker implements pool.Worker interface for Message processing.
type messageWorker struct {
	pool *Pool
}

// Do implements pool.Worker interface.
func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

// NewPool creates a worker pool around handler.
func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		handler: handler,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		metrics: &PoolMetrics{},
		log:     log.With().Str("component", "worker_pool").Logger(),
		dlq:     make(chan *Message, max(config.DLQSize, 1)),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.pool = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	p.dlqWg.Add(1)
	go p.dlqProcessor()

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("max_retries", p.config.MaxRetries).
		Msg("worker pool started")
	return nil
}

// Stop waits for submitted jobs, then shuts the pool down.
func (p *Pool) Stop(ctx context.Context) {
	p.log.Info().Msg("stopping worker pool...")

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	wg := p.pool
	p.mu.Unlock()

	if err := wg.Close(ctx); err != nil {
		p.log.Warn().Err(err).Msg("error closing worker pool")
	}

	p.cancel()
	p.retryWg.Wait()
	close(p.dlq)
	p.dlqWg.Wait()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Enqueue implements out.JobQueue.
func (p *Pool) Enqueue(_ context.Context, job *domain.Job) error {
	if !p.Submit(NewMessage(job)) {
		return ErrPoolStopped
	}
	return nil
}

// Submit submits a message to the pool.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.pool == nil {
		return false
	}

	atomic.AddInt32(&p.metrics.QueueSize, 1)
	p.pool.Submit(msg)
	return true
}

// processJob runs a single message. Runner errors are infrastructure
// failures (the job row could not be loaded or updated) and are retried
// with backoff; job-level failures are recorded by the runner itself.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()
	atomic.AddInt32(&p.metrics.QueueSize, -1)
	atomic.AddInt32(&p.metrics.Workers, 1)
	defer atomic.AddInt32(&p.metrics.Workers, -1)

	err := p.handler.Process(ctx, msg)
	p.updateAvgProcessTime(time.Since(start).Milliseconds())

	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		return nil
	}

	p.log.Error().
		Err(err).
		Str("job_id", msg.JobID).
		Str("job_type", string(msg.Type)).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if msg.Retries < p.config.MaxRetries && ctx.Err() == nil {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)
		p.scheduleRetry(msg)
		return err
	}

	atomic.AddInt64(&p.metrics.JobsFailed, 1)
	select {
	case p.dlq <- msg:
	default:
		p.log.Error().Str("job_id", msg.JobID).Msg("DLQ full, job lost")
	}
	return err
}

// scheduleRetry resubmits msg after exponential backoff with jitter.
func (p *Pool) scheduleRetry(msg *Message) {
	base := p.config.RetryBase * time.Duration(1<<(msg.Retries-1))
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	backoff := base + jitter

	p.retryWg.Add(1)
	go func() {
		defer p.retryWg.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-p.ctx.Done():
			p.log.Warn().Str("job_id", msg.JobID).Msg("retry dropped during shutdown")
		case <-timer.C:
			if !p.Submit(msg) {
				p.log.Warn().Str("job_id", msg.JobID).Msg("retry dropped, pool stopped")
			}
		}
	}()
}

// updateAvgProcessTime updates the average processing time.
func (p *Pool) updateAvgProcessTime(elapsed int64) {
	// Simple moving average
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
	} else {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
	}
}

// dlqProcessor logs messages that exhausted their retries. The job row stays
// in whatever state the runner left it in.
func (p *Pool) dlqProcessor() {
	defer p.dlqWg.Done()

	for msg := range p.dlq {
		p.log.Error().
			Str("job_id", msg.JobID).
			Str("job_type", string(msg.Type)).
			Int("retries", msg.Retries).
			Msg("DLQ: job permanently failed")
	}
}

// GetMetrics returns current pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsRetried:    atomic.LoadInt64(&p.metrics.JobsRetried),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		Workers:        atomic.LoadInt32(&p.metrics.Workers),
		QueueSize:      atomic.LoadInt32(&p.metrics.QueueSize),
	}
}

var _ out.JobQueue = (*Pool)(nil)
