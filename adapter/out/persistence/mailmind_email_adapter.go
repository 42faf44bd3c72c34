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

// EmailAdapter implements out.EmailRepository.
type EmailAdapter struct {
	db *sqlx.DB
}

func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

var _ out.EmailRepository = (*EmailAdapter)(nil)

type emailRow struct {
	ID                string         `db:"id"`
	ExternalID        sql.NullString `db:"external_id"`
	FromAddress       string         `db:"from_address"`
	FromName          string         `db:"from_name"`
	ToAddress         string         `db:"to_address"`
	Subject           string         `db:"subject"`
	Body              string         `db:"body"`
	ReceivedAt        time.Time      `db:"received_at"`
	IsCustomerService bool           `db:"is_customer_service"`
	Category          sql.NullString `db:"category"`
	Processed         bool           `db:"processed"`
	CreatedAt         time.Time      `db:"created_at"`
}

const emailColumns = `id, external_id, from_address, from_name, to_address, subject, body,
	received_at, is_customer_service, category, processed, created_at`

func (r *emailRow) toDomain() *domain.Email {
	e := &domain.Email{
		ID:                r.ID,
		ExternalID:        r.ExternalID.String,
		FromAddress:       r.FromAddress,
		FromName:          r.FromName,
		ToAddress:         r.ToAddress,
		Subject:           r.Subject,
		Body:              r.Body,
		ReceivedAt:        r.ReceivedAt,
		IsCustomerService: r.IsCustomerService,
		Processed:         r.Processed,
		CreatedAt:         r.CreatedAt,
	}
	if r.Category.Valid && r.Category.String != "" {
		category := r.Category.String
		e.Category = &category
	}
	return e
}

func (a *EmailAdapter) GetByID(ctx context.Context, id string) (*domain.Email, error) {
	var row emailRow
	err := a.db.GetContext(ctx, &row, a.db.Rebind(`SELECT `+emailColumns+` FROM emails WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return row.toDomain(), nil
}

func (a *EmailAdapter) List(ctx context.Context, filter domain.EmailFilter) ([]*domain.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE 1=1`
	var args []any
	if filter.CustomerServiceOnly {
		query += ` AND is_customer_service = ?`
		args = append(args, true)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Unprocessed {
		query += ` AND processed = ?`
		args = append(args, false)
	}
	query += ` ORDER BY received_at DESC`

	limit := filter.Limit
	if limit <= 0 && filter.Offset > 0 {
		limit = 1 << 30
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	var rows []emailRow
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toDomain())
	}
	return emails, nil
}

const insertEmail = `
	INSERT INTO emails (id, external_id, from_address, from_name, to_address, subject, body,
	                    received_at, is_customer_service, category, processed, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func emailArgs(e *domain.Email) []any {
	return []any{
		e.ID, nullString(e.ExternalID), e.FromAddress, e.FromName, e.ToAddress, e.Subject, e.Body,
		e.ReceivedAt, e.IsCustomerService, nullString(e.CategoryValue()), e.Processed, e.CreatedAt,
	}
}

func (a *EmailAdapter) Create(ctx context.Context, email *domain.Email) error {
	if _, err := a.db.ExecContext(ctx, a.db.Rebind(insertEmail), emailArgs(email)...); err != nil {
		return fmt.Errorf("create email: %w", err)
	}
	return nil
}

func (a *EmailAdapter) UpsertByExternalID(ctx context.Context, email *domain.Email) (bool, error) {
	if email.ExternalID == "" {
		return true, a.Create(ctx, email)
	}
	res, err := a.db.ExecContext(ctx, a.db.Rebind(insertEmail+` ON CONFLICT (external_id) DO NOTHING`), emailArgs(email)...)
	if err != nil {
		return false, fmt.Errorf("upsert email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert email: %w", err)
	}
	return n > 0, nil
}

func (a *EmailAdapter) UpdateClassification(ctx context.Context, id string, c *domain.Classification) error {
	category := ""
	if c.Category != nil {
		category = *c.Category
	}
	return a.exec(ctx, `UPDATE emails SET is_customer_service = ?, category = ? WHERE id = ?`,
		c.IsCustomerService, nullString(category), id)
}

func (a *EmailAdapter) MarkProcessed(ctx context.Context, id string) error {
	return a.exec(ctx, `UPDATE emails SET processed = ? WHERE id = ?`, true, id)
}

func (a *EmailAdapter) exec(ctx context.Context, query string, args ...any) error {
	res, err := a.db.ExecContext(ctx, a.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEmailNotFound
	}
	return nil
}

// ReplyAdapter implements out.ReplyRepository. ai_draft is written once.
type ReplyAdapter struct {
	db *sqlx.DB
}

func NewReplyAdapter(db *sqlx.DB) *ReplyAdapter {
	return &ReplyAdapter{db: db}
}

var _ out.ReplyRepository = (*ReplyAdapter)(nil)

type replyRow struct {
	ID          string         `db:"id"`
	EmailID     string         `db:"email_id"`
	AIDraft     string         `db:"ai_draft"`
	HumanEdited sql.NullString `db:"human_edited"`
	Sent        bool           `db:"sent"`
	SentAt      sql.NullTime   `db:"sent_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

const replyColumns = `id, email_id, ai_draft, human_edited, sent, sent_at, created_at`

func (r *replyRow) toDomain() *domain.Reply {
	reply := &domain.Reply{
		ID:        r.ID,
		EmailID:   r.EmailID,
		AIDraft:   r.AIDraft,
		Sent:      r.Sent,
		CreatedAt: r.CreatedAt,
	}
	if r.HumanEdited.Valid {
		edited := r.HumanEdited.String
		reply.HumanEdited = &edited
	}
	if r.SentAt.Valid {
		sentAt := r.SentAt.Time
		reply.SentAt = &sentAt
	}
	return reply
}

func (a *ReplyAdapter) Create(ctx context.Context, reply *domain.Reply) error {
	_, err := a.db.ExecContext(ctx, a.db.Rebind(`
		INSERT INTO replies (id, email_id, ai_draft, human_edited, sent, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		reply.ID, reply.EmailID, reply.AIDraft, reply.HumanEdited, reply.Sent, reply.SentAt, reply.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create reply: %w", err)
	}
	return nil
}

func (a *ReplyAdapter) GetByID(ctx context.Context, id string) (*domain.Reply, error) {
	var row replyRow
	err := a.db.GetContext(ctx, &row, a.db.Rebind(`SELECT `+replyColumns+` FROM replies WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReplyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reply: %w", err)
	}
	return row.toDomain(), nil
}

func (a *ReplyAdapter) ListByEmail(ctx context.Context, emailID string) ([]*domain.Reply, error) {
	var rows []replyRow
	err := a.db.SelectContext(ctx, &rows,
		a.db.Rebind(`SELECT `+replyColumns+` FROM replies WHERE email_id = ? ORDER BY created_at ASC`), emailID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	replies := make([]*domain.Reply, 0, len(rows))
	for i := range rows {
		replies = append(replies, rows[i].toDomain())
	}
	return replies, nil
}

func (a *ReplyAdapter) SetHumanEdited(ctx context.Context, id, content string) error {
	return a.exec(ctx, `UPDATE replies SET human_edited = ? WHERE id = ?`, content, id)
}

func (a *ReplyAdapter) MarkSent(ctx context.Context, id string, sentAt time.Time, humanEdited *string) error {
	if humanEdited != nil {
		return a.exec(ctx, `UPDATE replies SET sent = ?, sent_at = ?, human_edited = ? WHERE id = ?`,
			true, sentAt, *humanEdited, id)
	}
	return a.exec(ctx, `UPDATE replies SET sent = ?, sent_at = ? WHERE id = ?`, true, sentAt, id)
}

func (a *ReplyAdapter) exec(ctx context.Context, query string, args ...any) error {
	res, err := a.db.ExecContext(ctx, a.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update reply: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrReplyNotFound
	}
	return nil
}
