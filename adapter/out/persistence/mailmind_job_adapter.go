package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// JobAdapter implements out.JobRepository.
type JobAdapter struct {
	db *sqlx.DB
}

func NewJobAdapter(db *sqlx.DB) *JobAdapter {
	return &JobAdapter{db: db}
}

var _ out.JobRepository = (*JobAdapter)(nil)

type jobRow struct {
	ID              string         `db:"id"`
	Type            string         `db:"type"`
	Status          string         `db:"status"`
	Payload         sql.NullString `db:"payload"`
	Progress        string         `db:"progress"`
	Result          sql.NullString `db:"result"`
	Error           string         `db:"error"`
	CancelRequested bool           `db:"cancel_requested"`
	CreatedAt       time.Time      `db:"created_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	FinishedAt      sql.NullTime   `db:"finished_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

const jobColumns = `id, type, status, payload, progress, result, error, cancel_requested,
	created_at, started_at, finished_at, updated_at`

func (r *jobRow) toDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:              r.ID,
		Type:            domain.JobType(r.Type),
		Status:          domain.JobStatus(r.Status),
		Error:           r.Error,
		CancelRequested: r.CancelRequested,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Payload.Valid {
		job.Payload = []byte(r.Payload.String)
	}
	if r.Result.Valid {
		job.Result = []byte(r.Result.String)
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		job.StartedAt = &t
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		job.FinishedAt = &t
	}
	if err := decodeJSON(r.Progress, &job.Progress); err != nil {
		return nil, fmt.Errorf("decode progress of job %s: %w", r.ID, err)
	}
	return job, nil
}

func rawOrNull(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

func (a *JobAdapter) Create(ctx context.Context, job *domain.Job) error {
	progress, err := encodeJSON(job.Progress)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, a.db.Rebind(`
		INSERT INTO jobs (id, type, status, payload, progress, result, error, cancel_requested,
		                  created_at, started_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, string(job.Type), string(job.Status), rawOrNull(job.Payload), progress, rawOrNull(job.Result),
		job.Error, job.CancelRequested, job.CreatedAt, job.StartedAt, job.FinishedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (a *JobAdapter) Get(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	err := a.db.GetContext(ctx, &row, a.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.toDomain()
}

func (a *JobAdapter) List(ctx context.Context, limit int) ([]*domain.Job, error) {
	var rows []jobRow
	err := a.db.SelectContext(ctx, &rows,
		a.db.Rebind(`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *JobAdapter) Update(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	progress, err := encodeJSON(job.Progress)
	if err != nil {
		return err
	}
	res, err := a.db.ExecContext(ctx, a.db.Rebind(`
		UPDATE jobs
		SET status = ?, progress = ?, result = ?, error = ?, cancel_requested = (cancel_requested OR ?),
		    started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND (? OR cancel_requested = FALSE)`),
		string(job.Status), progress, rawOrNull(job.Result), job.Error, job.CancelRequested,
		job.StartedAt, job.FinishedAt, job.UpdatedAt, job.ID, string(from), !job.Status.Finishes(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = a.db.GetContext(ctx, &exists, a.db.Rebind(`SELECT COUNT(*) FROM jobs WHERE id = ?`), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if exists == 0 {
		return domain.ErrJobNotFound
	}
	return domain.ErrJobStateChanged
}
