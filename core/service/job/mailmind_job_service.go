// Package job runs long operations detached from the request that started them.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/pkg/apperr"
	"mailmind_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultListLimit = 50

// Handler executes one job type. progress persists side-channel progress;
// the returned value is stored as the job result.
type Handler func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error)

type running struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Service implements in.JobService and executes jobs on the worker side.
type Service struct {
	repo     out.JobRepository
	queue    out.JobQueue
	handlers map[domain.JobType]Handler
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]*running
}

// NewService creates a job service. timeout <= 0 disables the per-job deadline.
func NewService(repo out.JobRepository, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		handlers: make(map[domain.JobType]Handler),
		timeout:  timeout,
		log:      log.With().Str("component", "job_service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		running:  make(map[string]*running),
	}
}

var _ in.JobService = (*Service)(nil)

// Register binds a handler to a job type.
func (s *Service) Register(jobType domain.JobType, h Handler) {
	s.handlers[jobType] = h
}

// UseQueue sets where submitted jobs are handed off. The queue usually
// calls back into Run, so it is wired after construction.
func (s *Service) UseQueue(q out.JobQueue) {
	s.queue = q
}

// Submit persists a started job and enqueues it.
func (s *Service) Submit(ctx context.Context, jobType domain.JobType, payload any) (*domain.Job, error) {
	if _, ok := s.handlers[jobType]; !ok {
		return nil, apperr.InvalidInput("type", fmt.Sprintf("unknown job type %q", jobType))
	}
	if s.queue == nil {
		return nil, apperr.Unavailable("job queue")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.InvalidInput("payload", err.Error())
	}

	now := s.now()
	job := &domain.Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    domain.JobStarted,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, apperr.DatabaseError("create job", err)
	}
	metrics.Jobs.WithLabelValues(string(jobType), string(domain.JobStarted)).Inc()

	if err := s.queue.Enqueue(ctx, job); err != nil {
		if ferr := s.finish(ctx, job, domain.JobFailed, nil, fmt.Errorf("enqueue: %w", err)); ferr != nil {
			s.log.Error().Err(ferr).Str("job_id", job.ID).Msg("job state not saved")
		}
		return nil, apperr.ExternalError("job queue", err)
	}

	s.log.Info().Str("job_id", job.ID).Str("type", string(jobType)).Msg("job submitted")
	return job, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	jobs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list jobs", err)
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

// Cancel flags a job for cancellation. A job that has not started running is
// finished right away; a running job keeps the flag until its runner notices
// it, either through its context here or through progress checks elsewhere.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}

	if job.Status == domain.JobStarted {
		job.CancelRequested = true
		err := s.finish(ctx, job, domain.JobCancelled, nil, nil)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, domain.ErrJobStateChanged) {
			return nil, apperr.DatabaseError("update job", err)
		}
		// A runner picked the job up first.
		if job, err = s.repo.Get(ctx, id); err != nil {
			return nil, wrapLookup(err)
		}
	}
	if job.Status.Terminal() {
		return nil, alreadyFinished(job)
	}

	from := job.Status
	job.CancelRequested = true
	job.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, job, from); err != nil {
		if errors.Is(err, domain.ErrJobStateChanged) {
			if stored, getErr := s.repo.Get(ctx, id); getErr == nil {
				return nil, alreadyFinished(stored)
			}
		}
		return nil, apperr.DatabaseError("update job", err)
	}

	s.mu.Lock()
	if r, ok := s.running[id]; ok {
		r.cancelled = true
		r.cancel()
	}
	s.mu.Unlock()
	return job, nil
}

func alreadyFinished(job *domain.Job) error {
	return apperr.Conflict(fmt.Sprintf("job %s already %s", job.ID, job.Status)).WithError(domain.ErrInvalidJobState)
}

// Run executes a persisted job. It is called by whatever consumes the queue.
// Jobs already finished or cancelled before they started are skipped.
func (s *Service) Run(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}
	if job.Status != domain.JobStarted {
		s.log.Debug().Str("job_id", id).Str("status", string(job.Status)).Msg("job not runnable, skipped")
		return nil
	}

	handler, ok := s.handlers[job.Type]
	if !ok {
		err := s.finish(ctx, job, domain.JobFailed, nil, fmt.Errorf("no handler for job type %q", job.Type))
		if err != nil && !errors.Is(err, domain.ErrJobStateChanged) {
			return fmt.Errorf("fail job %s: %w", id, err)
		}
		return nil
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	r := &running{cancel: cancel}
	s.mu.Lock()
	s.running[id] = r
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	started := s.now()
	job.Status = domain.JobRunning
	job.StartedAt = &started
	job.UpdatedAt = started
	if err := s.repo.Update(ctx, job, domain.JobStarted); err != nil {
		if errors.Is(err, domain.ErrJobStateChanged) {
			s.log.Info().Str("job_id", id).Msg("job changed before it started, skipped")
			return nil
		}
		return fmt.Errorf("mark job %s running: %w", id, err)
	}
	metrics.Jobs.WithLabelValues(string(job.Type), string(domain.JobRunning)).Inc()
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	s.log.Info().Str("job_id", id).Str("type", string(job.Type)).Msg("job running")

	result, runErr := handler(runCtx, job, s.progress(runCtx, job, r))

	s.mu.Lock()
	cancelled := r.cancelled
	s.mu.Unlock()

	status, finalErr := domain.JobCompleted, error(nil)
	switch {
	case cancelled:
		job.CancelRequested = true
		status = domain.JobCancelled
	case runErr != nil:
		status, finalErr = domain.JobFailed, runErr
	}

	err = s.finish(ctx, job, status, result, finalErr)
	if errors.Is(err, domain.ErrJobStateChanged) && status.Finishes() {
		// Cancellation was requested after the last progress check.
		job.CancelRequested = true
		err = s.finish(ctx, job, domain.JobCancelled, result, nil)
	}
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("job state not saved")
	}
	return nil
}

// progress persists progress and picks up cancellation requested by
// another process.
func (s *Service) progress(ctx context.Context, job *domain.Job, r *running) domain.ProgressFunc {
	return func(current, total int, message string) {
		if stored, err := s.repo.Get(ctx, job.ID); err == nil && stored.CancelRequested {
			s.markCancelled(job, r)
			return
		}

		job.Progress = domain.JobProgress{Current: current, Total: total, Message: message}
		job.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, job, domain.JobRunning); err != nil {
			s.log.Warn().Err(err).Str("job_id", job.ID).Msg("job progress not saved")
		}
	}
}

func (s *Service) markCancelled(job *domain.Job, r *running) {
	job.CancelRequested = true
	s.mu.Lock()
	r.cancelled = true
	s.mu.Unlock()
	r.cancel()
}

// finish moves job to a terminal status with a write conditional on its
// current status. On error job is left unchanged.
func (s *Service) finish(ctx context.Context, job *domain.Job, status domain.JobStatus, result any, runErr error) error {
	from := job.Status
	if !from.CanTransition(status) {
		s.log.Warn().Str("job_id", job.ID).Str("from", string(from)).Str("to", string(status)).Msg("invalid job transition")
		return domain.ErrInvalidJobState
	}

	next := *job
	now := s.now()
	next.Status = status
	next.FinishedAt = &now
	next.UpdatedAt = now
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			next.Result = raw
		}
	}
	if runErr != nil {
		next.Error = runErr.Error()
	}

	// The run context may already be cancelled; the final state must still land.
	if err := s.repo.Update(context.WithoutCancel(ctx), &next, from); err != nil {
		return err
	}
	*job = next
	metrics.Jobs.WithLabelValues(string(job.Type), string(status)).Inc()

	event := s.log.Info()
	if runErr != nil {
		event = s.log.Warn().Err(runErr)
	}
	event.Str("job_id", job.ID).Str("status", string(status)).Msg("job finished")
	return nil
}

func wrapLookup(err error) error {
	if errors.Is(err, domain.ErrJobNotFound) {
		return apperr.NotFound("job").WithError(err)
	}
	return apperr.DatabaseError("load job", err)
}
