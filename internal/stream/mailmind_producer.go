package stream

import (
	"context"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"
)

// Envelope is what travels on the stream: a reference to a persisted job.
type Envelope struct {
	JobID     string         `json:"job_id"`
	Type      domain.JobType `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

type publisher interface {
	Publish(ctx context.Context, stream string, data any) (string, error)
}

// Producer implements out.JobQueue over a Redis stream.
type Producer struct {
	stream publisher
}

func NewProducer(stream *RedisStream) *Producer {
	return &Producer{stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, job *domain.Job) error {
	_, err := p.stream.Publish(ctx, StreamJobs, &Envelope{
		JobID:     job.ID,
		Type:      job.Type,
		CreatedAt: job.CreatedAt,
	})
	return err
}

var _ out.JobQueue = (*Producer)(nil)
