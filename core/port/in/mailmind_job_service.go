package in

import (
	"context"

	"mailmind_server/core/domain"
)

// JobService submits and tracks detached operations.
type JobService interface {
	Submit(ctx context.Context, jobType domain.JobType, payload any) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]*domain.Job, error)
	Cancel(ctx context.Context, id string) (*domain.Job, error)
}
