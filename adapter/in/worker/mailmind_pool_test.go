package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"mailmind_server/core/domain"

	"github.com/rs/zerolog"
)

type fakeRunner struct {
	mu       sync.Mutex
	ran      []string
	failures map[string]int
	done     chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{failures: map[string]int{}, done: make(chan string, 16)}
}

func (r *fakeRunner) Run(_ context.Context, id string) error {
	r.mu.Lock()
	if r.failures[id] > 0 {
		r.failures[id]--
		r.mu.Unlock()
		return errors.New("database unavailable")
	}
	r.ran = append(r.ran, id)
	r.mu.Unlock()
	r.done <- id
	return nil
}

func (r *fakeRunner) waitFor(t *testing.T, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case id := <-r.done:
			got = append(got, id)
		case <-timeout:
			t.Fatalf("expected %d jobs to run, got %d", n, len(got))
		}
	}
	sort.Strings(got)
	return got
}

func testPool(t *testing.T, runner JobRunner) *Pool {
	t.Helper()
	cfg := DefaultPoolConfig()
	cfg.Workers = 2
	cfg.RetryBase = time.Millisecond
	p := NewPool(NewHandler(runner), cfg, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return p
}

func TestPool_RunsEnqueuedJobs(t *testing.T) {
	runner := newFakeRunner()
	p := testPool(t, runner)

	for _, id := range []string{"a", "b", "c"} {
		if err := p.Enqueue(context.Background(), &domain.Job{ID: id, Type: domain.JobLearning}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	got := runner.waitFor(t, 3)
	p.Stop(context.Background())

	expected := []string{"a", "b", "c"}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, got)
			break
		}
	}
	if m := p.GetMetrics(); m.JobsProcessed != 3 {
		t.Errorf("expected 3 processed, got %d", m.JobsProcessed)
	}
}

func TestPool_RetriesRunnerErrors(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["flaky"] = 2
	p := testPool(t, runner)

	if err := p.Enqueue(context.Background(), &domain.Job{ID: "flaky"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got := runner.waitFor(t, 1)
	p.Stop(context.Background())

	if got[0] != "flaky" {
		t.Errorf("expected flaky, got %s", got[0])
	}
	if m := p.GetMetrics(); m.JobsRetried != 2 {
		t.Errorf("expected 2 retries, got %d", m.JobsRetried)
	}
}

func TestPool_EnqueueAfterStop(t *testing.T) {
	p := testPool(t, newFakeRunner())
	p.Stop(context.Background())

	err := p.Enqueue(context.Background(), &domain.Job{ID: "late"})
	if !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_EnqueueBeforeStart(t *testing.T) {
	p := NewPool(NewHandler(newFakeRunner()), nil, zerolog.Nop())

	if err := p.Enqueue(context.Background(), &domain.Job{ID: "early"}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_DispatchesWithoutFillingBatch(t *testing.T) {
	tests := []struct {
		name string
		jobs int
	}{
		{name: "single job", jobs: 1},
		{name: "below default batch", jobs: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.done = make(chan string, tt.jobs)
			p := testPool(t, runner)
			defer p.Stop(context.Background())

			for i := 0; i < tt.jobs; i++ {
				job := &domain.Job{ID: string(rune('a' + i)), Type: domain.JobLearning}
				if err := p.Enqueue(context.Background(), job); err != nil {
					t.Fatalf("enqueue: %v", err)
				}
			}

			// Stop is deferred, so every job must run while the pool is live.
			got := runner.waitFor(t, tt.jobs)
			if len(got) != tt.jobs {
				t.Errorf("expected %d jobs, got %d", tt.jobs, len(got))
			}
		})
	}
}
