package job

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/internal/memstore"
	"mailmind_server/pkg/apperr"

	"github.com/rs/zerolog"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, job.ID)
	return nil
}

func newTestService(h Handler) (*Service, *memstore.Jobs, *recordingQueue) {
	repo := memstore.NewJobs()
	queue := &recordingQueue{}
	svc := NewService(repo, 0, zerolog.Nop())
	svc.UseQueue(queue)
	svc.Register(domain.JobEvolution, h)
	return svc, repo, queue
}

func TestSubmitPersistsAndEnqueues(t *testing.T) {
	svc, _, queue := newTestService(func(context.Context, *domain.Job, domain.ProgressFunc) (any, error) { return nil, nil })

	job, err := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobStarted {
		t.Errorf("expected status %q, got %q", domain.JobStarted, job.Status)
	}
	if string(job.Payload) != `{"reply_id":"r1"}` {
		t.Errorf("unexpected payload %s", job.Payload)
	}
	if len(queue.ids) != 1 || queue.ids[0] != job.ID {
		t.Errorf("expected job to be enqueued, got %v", queue.ids)
	}

	stored, err := svc.Get(context.Background(), job.ID)
	if err != nil || stored.Status != domain.JobStarted {
		t.Errorf("expected stored started job, got %+v, %v", stored, err)
	}
}

func TestSubmitErrors(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		svc, _, _ := newTestService(nil)
		_, err := svc.Submit(context.Background(), domain.JobLearning, nil)
		if apperr.GetHTTPStatus(err) != http.StatusBadRequest {
			t.Errorf("expected 400, got %v", err)
		}
	})

	t.Run("enqueue failure marks job failed", func(t *testing.T) {
		svc, repo, queue := newTestService(nil)
		queue.err = errors.New("redis down")

		_, err := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})
		if err == nil {
			t.Fatal("expected error")
		}
		jobs, _ := repo.List(context.Background(), 0)
		if len(jobs) != 1 || jobs[0].Status != domain.JobFailed {
			t.Errorf("expected one failed job, got %+v", jobs)
		}
	})
}

func TestRunCompletesWithResultAndProgress(t *testing.T) {
	svc, _, _ := newTestService(func(_ context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		var p domain.EvolvePayload
		if err := decode(job, &p); err != nil {
			return nil, err
		}
		progress(2, 5, "Analyzing...")
		return map[string]string{"reply_id": p.ReplyID}, nil
	})
	job, _ := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	if err := svc.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, _ := svc.Get(context.Background(), job.ID)
	if done.Status != domain.JobCompleted {
		t.Errorf("expected status %q, got %q", domain.JobCompleted, done.Status)
	}
	if string(done.Result) != `{"reply_id":"r1"}` {
		t.Errorf("unexpected result %s", done.Result)
	}
	if done.Progress.Current != 2 || done.Progress.Message != "Analyzing..." {
		t.Errorf("unexpected progress %+v", done.Progress)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Error("expected start and finish timestamps")
	}
}

func TestRunFailure(t *testing.T) {
	svc, _, _ := newTestService(func(context.Context, *domain.Job, domain.ProgressFunc) (any, error) {
		return nil, errors.New("reply not found: r1")
	})
	job, _ := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	if err := svc.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, _ := svc.Get(context.Background(), job.ID)
	if done.Status != domain.JobFailed || done.Error != "reply not found: r1" {
		t.Errorf("expected failed job with error, got %q %q", done.Status, done.Error)
	}
}

func TestCancelBeforeRun(t *testing.T) {
	calls := 0
	svc, _, _ := newTestService(func(context.Context, *domain.Job, domain.ProgressFunc) (any, error) {
		calls++
		return nil, nil
	})
	job, _ := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	cancelled, err := svc.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.JobCancelled || !cancelled.CancelRequested {
		t.Errorf("expected cancelled job, got %q", cancelled.Status)
	}

	if err := svc.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected handler to be skipped, got %d calls", calls)
	}

	_, err = svc.Cancel(context.Background(), job.ID)
	if apperr.GetHTTPStatus(err) != http.StatusConflict || !errors.Is(err, domain.ErrInvalidJobState) {
		t.Errorf("expected conflict for a finished job, got %v", err)
	}
}

func TestCancelRunningJob(t *testing.T) {
	started := make(chan struct{})
	svc, _, _ := newTestService(func(ctx context.Context, _ *domain.Job, _ domain.ProgressFunc) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	job, _ := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background(), job.ID) }()

	<-started
	if _, err := svc.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop after cancel")
	}

	final, _ := svc.Get(context.Background(), job.ID)
	if final.Status != domain.JobCancelled {
		t.Errorf("expected status %q, got %q", domain.JobCancelled, final.Status)
	}
}

func TestProgressObservesRemoteCancel(t *testing.T) {
	var svc *Service
	var repo *memstore.Jobs
	svc, repo, _ = newTestService(func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		stored, _ := repo.Get(ctx, job.ID)
		stored.CancelRequested = true
		_ = repo.Update(ctx, stored, domain.JobRunning)

		progress(1, 2, "step")
		return nil, ctx.Err()
	})
	job, _ := svc.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	if err := svc.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final, _ := svc.Get(context.Background(), job.ID)
	if final.Status != domain.JobCancelled {
		t.Errorf("expected status %q, got %q", domain.JobCancelled, final.Status)
	}
}

func TestGetUnknownJob(t *testing.T) {
	svc, _, _ := newTestService(nil)
	_, err := svc.Get(context.Background(), "missing")
	if apperr.GetHTTPStatus(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

// racingJobs runs hook once, right after the next Get, to interleave a
// writer from another process.
type racingJobs struct {
	*memstore.Jobs
	mu   sync.Mutex
	hook func()
}

func (r *racingJobs) arm(hook func()) {
	r.mu.Lock()
	r.hook = hook
	r.mu.Unlock()
}

func (r *racingJobs) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := r.Jobs.Get(ctx, id)
	r.mu.Lock()
	hook := r.hook
	r.hook = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return job, err
}

func newRacingServices(h Handler) (worker, api *Service, repo *racingJobs) {
	repo = &racingJobs{Jobs: memstore.NewJobs()}
	worker = NewService(repo, 0, zerolog.Nop())
	worker.UseQueue(&recordingQueue{})
	worker.Register(domain.JobEvolution, h)
	api = NewService(repo, 0, zerolog.Nop())
	return worker, api, repo
}

func TestCancelBetweenProgressReadAndWriteIsKept(t *testing.T) {
	var (
		api       *Service
		repo      *racingJobs
		cancelErr error
	)
	worker, api, repo := newRacingServices(func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		repo.arm(func() { _, cancelErr = api.Cancel(context.Background(), job.ID) })
		progress(1, 2, "step")
		return "done", nil
	})
	job, err := worker.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := worker.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelErr != nil {
		t.Fatalf("unexpected cancel error: %v", cancelErr)
	}

	final, _ := worker.Get(context.Background(), job.ID)
	if final.Status != domain.JobCancelled {
		t.Errorf("expected status %q, got %q", domain.JobCancelled, final.Status)
	}
	if !final.CancelRequested {
		t.Error("expected cancel_requested to stay set")
	}
}

func TestRunSkipsJobCancelledWhileLoading(t *testing.T) {
	calls := 0
	worker, api, repo := newRacingServices(func(context.Context, *domain.Job, domain.ProgressFunc) (any, error) {
		calls++
		return nil, nil
	})
	job, _ := worker.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	var cancelErr error
	repo.arm(func() { _, cancelErr = api.Cancel(context.Background(), job.ID) })
	if err := worker.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelErr != nil {
		t.Fatalf("unexpected cancel error: %v", cancelErr)
	}

	if calls != 0 {
		t.Errorf("expected handler to be skipped, got %d calls", calls)
	}
	final, _ := worker.Get(context.Background(), job.ID)
	if final.Status != domain.JobCancelled {
		t.Errorf("expected status %q, got %q", domain.JobCancelled, final.Status)
	}
}

func TestCancelAfterRunFinishedConflicts(t *testing.T) {
	worker, api, repo := newRacingServices(func(context.Context, *domain.Job, domain.ProgressFunc) (any, error) {
		return nil, nil
	})
	job, _ := worker.Submit(context.Background(), domain.JobEvolution, domain.EvolvePayload{ReplyID: "r1"})

	// The cancel reads a running job, then the runner completes before it writes.
	stored, _ := repo.Jobs.Get(context.Background(), job.ID)
	stored.Status = domain.JobRunning
	if err := repo.Jobs.Update(context.Background(), stored, domain.JobStarted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repo.arm(func() {
		done := *stored
		done.Status = domain.JobCompleted
		_ = repo.Jobs.Update(context.Background(), &done, domain.JobRunning)
	})

	_, err := api.Cancel(context.Background(), job.ID)
	if apperr.GetHTTPStatus(err) != http.StatusConflict {
		t.Errorf("expected conflict, got %v", err)
	}
	final, _ := worker.Get(context.Background(), job.ID)
	if final.Status != domain.JobCompleted {
		t.Errorf("expected status %q, got %q", domain.JobCompleted, final.Status)
	}
}
