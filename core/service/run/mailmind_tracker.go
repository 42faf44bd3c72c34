// Package run tracks agent runs for status reporting.
package run

import (
	"sort"
	"sync"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/pkg/metrics"

	"github.com/google/uuid"
)

const historyLimit = 100

const (
	StateBusy  = "busy"
	StateReady = "ready"
)

// Tracker records the runs of one agent. Several runs may be active at once.
type Tracker struct {
	name        string
	description string

	mu         sync.Mutex
	current    map[string]*domain.RunInfo
	history    []domain.RunInfo
	totalRuns  int
	onProgress domain.ProgressFunc
	now        func() time.Time
}

func NewTracker(name, description string) *Tracker {
	return &Tracker{
		name:        name,
		description: description,
		current:     make(map[string]*domain.RunInfo),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetProgressCallback installs a callback that sees progress of every run.
func (t *Tracker) SetProgressCallback(fn domain.ProgressFunc) {
	t.mu.Lock()
	t.onProgress = fn
	t.mu.Unlock()
}

// Run is a handle on one active run.
type Run struct {
	ID string

	tracker    *Tracker
	onProgress domain.ProgressFunc
	once       sync.Once
}

// Start registers a new run. onProgress may be nil.
func (t *Tracker) Start(onProgress domain.ProgressFunc) *Run {
	id := uuid.New().String()

	t.mu.Lock()
	t.current[id] = &domain.RunInfo{
		RunID:     id,
		AgentName: t.name,
		StartedAt: t.now(),
		Status:    "running",
	}
	t.mu.Unlock()

	return &Run{ID: id, tracker: t, onProgress: onProgress}
}

// Step records progress and forwards it to the callbacks.
func (r *Run) Step(current, total int, message string) {
	t := r.tracker

	t.mu.Lock()
	if info, ok := t.current[r.ID]; ok {
		info.Progress = current
		info.TotalSteps = total
		info.Message = message
	}
	global := t.onProgress
	t.mu.Unlock()

	if r.onProgress != nil {
		r.onProgress(current, total, message)
	}
	if global != nil {
		global(current, total, message)
	}
}

// End closes the run with status. Later calls are ignored.
func (r *Run) End(status domain.RunStatus) {
	r.once.Do(func() {
		t := r.tracker

		t.mu.Lock()
		info, ok := t.current[r.ID]
		if !ok {
			t.mu.Unlock()
			return
		}
		delete(t.current, r.ID)

		finished := t.now()
		info.CompletedAt = &finished
		info.Status = string(status)
		t.history = append(t.history, *info)
		if len(t.history) > historyLimit {
			t.history = t.history[len(t.history)-historyLimit:]
		}
		t.totalRuns++
		started := info.StartedAt
		t.mu.Unlock()

		metrics.AgentRuns.WithLabelValues(t.name, string(status)).Inc()
		metrics.AgentRunDuration.WithLabelValues(t.name).Observe(finished.Sub(started).Seconds())
	})
}

// Status reports the agent as busy while any run is active.
func (t *Tracker) Status() domain.AgentStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := domain.AgentStatus{
		Name:        t.name,
		Description: t.description,
		Status:      StateReady,
		CurrentRuns: make([]domain.RunInfo, 0, len(t.current)),
		TotalRuns:   t.totalRuns,
	}
	for _, info := range t.current {
		status.CurrentRuns = append(status.CurrentRuns, *info)
	}
	sort.Slice(status.CurrentRuns, func(i, j int) bool {
		return status.CurrentRuns[i].StartedAt.Before(status.CurrentRuns[j].StartedAt)
	})
	if len(status.CurrentRuns) > 0 {
		status.Status = StateBusy
	}
	if n := len(t.history); n > 0 {
		last := *t.history[n-1].CompletedAt
		status.LastRun = &last
	}
	return status
}

// History returns finished runs, oldest first.
func (t *Tracker) History() []domain.RunInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.RunInfo(nil), t.history...)
}
