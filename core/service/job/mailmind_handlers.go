package job

import (
	"context"
	"errors"
	"strings"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"

	"github.com/goccy/go-json"
)

// ErrEmptyPayload is returned when a job needs parameters and has none.
var ErrEmptyPayload = errors.New("job payload is empty")

func decode(job *domain.Job, v any) error {
	if len(job.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(job.Payload, v)
}

// agentError joins the errors an agent reported for a failed run.
func agentError(errs []string) error {
	if len(errs) == 0 {
		return errors.New("run failed")
	}
	return errors.New(strings.Join(errs, "; "))
}

func LearningHandler(agent in.LearningAgent) Handler {
	return func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		var p domain.LearnPayload
		if len(job.Payload) > 0 {
			if err := decode(job, &p); err != nil {
				return nil, err
			}
		}
		result := agent.Learn(ctx, &in.LearnRequest{
			EmailCount: p.EmailCount,
			Force:      p.Force,
			Categories: p.Categories,
			OnProgress: progress,
		})
		if !result.Success {
			return result, agentError(result.Errors)
		}
		return result, nil
	}
}

func BatchExecutionHandler(agent in.ExecutionAgent) Handler {
	return func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		var p domain.BatchExecutePayload
		if err := decode(job, &p); err != nil {
			return nil, err
		}
		batch := agent.ExecuteBatch(ctx, p.EmailIDs, progress)
		return batch, ctx.Err()
	}
}

func EvolutionHandler(agent in.EvolutionAgent) Handler {
	return func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		var p domain.EvolvePayload
		if err := decode(job, &p); err != nil {
			return nil, err
		}
		result := agent.Evolve(ctx, &in.EvolveRequest{ReplyID: p.ReplyID, OnProgress: progress})
		if !result.Success {
			return result, agentError(result.Errors)
		}
		return result, nil
	}
}

func SnapshotExportHandler(skills in.SkillService) Handler {
	return func(ctx context.Context, _ *domain.Job, progress domain.ProgressFunc) (any, error) {
		progress(1, 1, "Exporting skill snapshot...")
		snapshot, err := skills.ExportSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"total": snapshot.Total, "exported_at": snapshot.ExportedAt}, nil
	}
}

func MailSyncHandler(emails in.EmailService) Handler {
	return func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) (any, error) {
		var p domain.MailSyncPayload
		if len(job.Payload) > 0 {
			if err := decode(job, &p); err != nil {
				return nil, err
			}
		}
		progress(1, 1, "Fetching recent mail...")
		return emails.Sync(ctx, p.Limit)
	}
}
