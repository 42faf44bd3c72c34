package bootstrap

import (
	"context"

	"mailmind_server/adapter/in/worker"
	"mailmind_server/internal/stream"
	"mailmind_server/pkg/logger"

	"github.com/rs/zerolog"
)

// Worker executes queued jobs. Jobs arrive from the Redis stream when one is
// configured, otherwise straight from the job service.
type Worker struct {
	pool     *worker.Pool
	consumer *stream.Consumer
	zlog     zerolog.Logger
}

// NewWorker creates the job pool around deps.JobService.
func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	zlog := logger.Component("worker")

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.Workers = cfg.WorkerMax
	}
	pool := worker.NewPool(worker.NewHandler(deps.JobService), poolConfig, zlog)

	w := &Worker{pool: pool, zlog: zlog}

	if deps.Redis != nil {
		rs := stream.NewRedisStream(deps.Redis, cfg.WorkerGroup, logger.Component("redis_stream"))
		w.consumer = stream.NewConsumer(rs, pool, cfg.WorkerID, logger.Component("stream_consumer"))
		logger.Info("Worker consuming %s as %s", stream.StreamJobs, cfg.WorkerID)
	} else {
		deps.JobService.UseQueue(pool)
		logger.Warn("Redis not available, worker only runs jobs submitted in this process")
	}

	return w
}

// Start starts the pool and, when configured, the stream consumer. The
// consumer stops with ctx.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.pool.Start(); err != nil {
		return err
	}
	if w.consumer != nil {
		if err := w.consumer.Start(ctx); err != nil {
			return err
		}
	}
	w.zlog.Info().Msg("worker started")
	return nil
}

// Stop drains the pool. ctx bounds the wait.
func (w *Worker) Stop(ctx context.Context) {
	w.pool.Stop(ctx)
	m := w.pool.GetMetrics()
	w.zlog.Info().
		Int64("processed", m.JobsProcessed).
		Int64("failed", m.JobsFailed).
		Msg("worker stopped")
}
