package worker

import (
	"context"

	"mailmind_server/pkg/logger"
)

// JobRunner executes a persisted job by id.
type JobRunner interface {
	Run(ctx context.Context, id string) error
}

type Handler struct {
	runner JobRunner
}

func NewHandler(runner JobRunner) *Handler {
	return &Handler{runner: runner}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing job %s (%s)", msg.JobID, msg.Type)
	return h.runner.Run(ctx, msg.JobID)
}
