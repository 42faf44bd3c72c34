package worker

import (
	"time"

	"mailmind_server/core/domain"
)

// Message is a queued reference to a persisted job. The job row holds the
// payload; the message only says which job to run.
type Message struct {
	JobID     string         `json:"job_id"`
	Type      domain.JobType `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(job *domain.Job) *Message {
	return &Message{
		JobID:     job.ID,
		Type:      job.Type,
		CreatedAt: job.CreatedAt,
	}
}
