package domain

import (
	"encoding/json"
	"time"
)

// JobType identifies a detached long-running operation.
type JobType string

const (
	JobLearning       JobType = "learning"
	JobBatchExecution JobType = "execution_batch"
	JobEvolution      JobType = "evolution"
	JobSnapshotExport JobType = "snapshot_export"
	JobMailSync       JobType = "mail_sync"
)

// JobStatus follows started -> running -> completed | failed | cancelled.
type JobStatus string

const (
	JobStarted   JobStatus = "started"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// CanTransition validates a job state change.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStarted:
		return to == JobRunning || to == JobCancelled || to == JobFailed
	case JobRunning:
		return to == JobCompleted || to == JobFailed || to == JobCancelled
	default:
		return false
	}
}

// Finishes reports whether moving to s counts as a normal end of the run,
// which a pending cancellation request must prevent.
func (s JobStatus) Finishes() bool {
	return s == JobCompleted || s == JobFailed
}

// JobProgress is the side-channel progress of a running job.
type JobProgress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Job is the persisted state of a detached operation.
type Job struct {
	ID              string          `json:"job_id"`
	Type            JobType         `json:"type"`
	Status          JobStatus       `json:"status"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Progress        JobProgress     `json:"progress"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LearnPayload parameterizes a learning job.
type LearnPayload struct {
	EmailCount int      `json:"email_count"`
	Force      bool     `json:"force"`
	Categories []string `json:"categories,omitempty"`
}

// BatchExecutePayload parameterizes a batch execution job.
type BatchExecutePayload struct {
	EmailIDs []string `json:"email_ids"`
}

// EvolvePayload parameterizes an evolution job.
type EvolvePayload struct {
	ReplyID string `json:"reply_id"`
}

// MailSyncPayload parameterizes a mailbox sync job.
type MailSyncPayload struct {
	Limit int `json:"limit"`
}
