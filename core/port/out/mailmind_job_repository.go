package out

import (
	"context"

	"mailmind_server/core/domain"
)

// JobRepository persists detached job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]*domain.Job, error)
	// Update writes job only while the stored status is still from. The
	// stored cancel flag is never cleared, and a job with a pending cancel
	// request cannot move to completed or failed. A lost race returns
	// domain.ErrJobStateChanged.
	Update(ctx context.Context, job *domain.Job, from domain.JobStatus) error
}

// JobQueue hands a persisted job to whatever executes it.
type JobQueue interface {
	Enqueue(ctx context.Context, job *domain.Job) error
}
