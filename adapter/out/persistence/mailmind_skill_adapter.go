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

// SkillAdapter implements out.SkillRepository and out.HistoryRepository.
type SkillAdapter struct {
	db *sqlx.DB
}

func NewSkillAdapter(db *sqlx.DB) *SkillAdapter {
	return &SkillAdapter{db: db}
}

var (
	_ out.SkillRepository   = (*SkillAdapter)(nil)
	_ out.HistoryRepository = (*SkillAdapter)(nil)
)

type skillRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	NameEn          string    `db:"name_en"`
	Category        string    `db:"category"`
	Description     string    `db:"description"`
	TriggerKeywords string    `db:"trigger_keywords"`
	Rules           string    `db:"rules"`
	UsageCount      int       `db:"usage_count"`
	SuccessCount    int       `db:"success_count"`
	IsActive        bool      `db:"is_active"`
	Version         int       `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

const skillColumns = `id, name, name_en, category, description, trigger_keywords, rules,
	usage_count, success_count, is_active, version, created_at, updated_at`

func (r *skillRow) toDomain() (*domain.Skill, error) {
	s := &domain.Skill{
		ID:              r.ID,
		Name:            r.Name,
		NameEn:          r.NameEn,
		Category:        r.Category,
		Description:     r.Description,
		TriggerKeywords: []string{},
		Rules:           []domain.Rule{},
		UsageCount:      r.UsageCount,
		SuccessCount:    r.SuccessCount,
		IsActive:        r.IsActive,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if err := decodeJSON(r.TriggerKeywords, &s.TriggerKeywords); err != nil {
		return nil, fmt.Errorf("decode trigger_keywords of %s: %w", r.ID, err)
	}
	if err := decodeJSON(r.Rules, &s.Rules); err != nil {
		return nil, fmt.Errorf("decode rules of %s: %w", r.ID, err)
	}
	return s, nil
}

func (a *SkillAdapter) List(ctx context.Context, filter domain.SkillFilter) ([]*domain.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills WHERE 1=1`
	var args []any
	if filter.ActiveOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY usage_count DESC, created_at ASC`

	var rows []skillRow
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	skills := make([]*domain.Skill, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, nil
}

func (a *SkillAdapter) GetByID(ctx context.Context, id string) (*domain.Skill, error) {
	return a.getOne(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = ?`, id)
}

func (a *SkillAdapter) GetByNameEn(ctx context.Context, nameEn string) (*domain.Skill, error) {
	return a.getOne(ctx, `SELECT `+skillColumns+` FROM skills WHERE name_en = ?`, nameEn)
}

func (a *SkillAdapter) getOne(ctx context.Context, query string, arg any) (*domain.Skill, error) {
	var row skillRow
	if err := a.db.GetContext(ctx, &row, a.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSkillNotFound
		}
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return row.toDomain()
}

func (a *SkillAdapter) Create(ctx context.Context, skill *domain.Skill) error {
	keywords, err := encodeJSON(skill.TriggerKeywords)
	if err != nil {
		return err
	}
	rules, err := encodeJSON(skill.Rules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO skills (id, name, name_en, category, description, trigger_keywords, rules,
		                    usage_count, success_count, is_active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	_, err = a.db.ExecContext(ctx, a.db.Rebind(query),
		skill.ID, skill.Name, skill.NameEn, skill.Category, skill.Description, keywords, rules,
		skill.UsageCount, skill.SuccessCount, skill.IsActive, skill.CreatedAt, skill.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSkill
	}
	if err != nil {
		return fmt.Errorf("create skill: %w", err)
	}
	skill.Version = 1
	return nil
}

// Update never writes the usage counters; IncrementUsage owns them.
func (a *SkillAdapter) Update(ctx context.Context, skill *domain.Skill, expectedVersion int, logs ...*domain.SkillChangeLog) error {
	keywords, err := encodeJSON(skill.TriggerKeywords)
	if err != nil {
		return err
	}
	rules, err := encodeJSON(skill.Rules)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE skills
		SET name = ?, category = ?, description = ?, trigger_keywords = ?, rules = ?,
		    is_active = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(query),
		skill.Name, skill.Category, skill.Description, keywords, rules,
		skill.IsActive, skill.UpdatedAt, skill.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update skill: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update skill: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM skills WHERE id = ?`), skill.ID)
		if err != nil {
			return fmt.Errorf("check skill: %w", err)
		}
		if exists == 0 {
			return domain.ErrSkillNotFound
		}
		return domain.ErrVersionConflict
	}

	for _, l := range logs {
		detail, err := encodeJSON(l.ChangeDetail)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO skill_change_logs (id, skill_id, change_type, change_detail, triggered_by_reply_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			l.ID, l.SkillID, string(l.ChangeType), detail, nullString(l.TriggeredByReplyID), l.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert change log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	skill.Version = expectedVersion + 1
	return nil
}

func (a *SkillAdapter) IncrementUsage(ctx context.Context, id string, success bool) error {
	successInc := 0
	if success {
		successInc = 1
	}
	res, err := a.db.ExecContext(ctx, a.db.Rebind(`
		UPDATE skills SET usage_count = usage_count + 1, success_count = success_count + ?
		WHERE id = ?`), successInc, id)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSkillNotFound
	}
	return nil
}

func (a *SkillAdapter) Categories(ctx context.Context) ([]string, error) {
	categories := []string{}
	err := a.db.SelectContext(ctx, &categories,
		`SELECT DISTINCT category FROM skills WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

type changeLogRow struct {
	ID                 string         `db:"id"`
	SkillID            string         `db:"skill_id"`
	ChangeType         string         `db:"change_type"`
	ChangeDetail       string         `db:"change_detail"`
	TriggeredByReplyID sql.NullString `db:"triggered_by_reply_id"`
	CreatedAt          time.Time      `db:"created_at"`
}

func (a *SkillAdapter) ListChangeLogs(ctx context.Context, skillID string, limit int) ([]*domain.SkillChangeLog, error) {
	query := `
		SELECT id, skill_id, change_type, change_detail, triggered_by_reply_id, created_at
		FROM skill_change_logs WHERE skill_id = ?
		ORDER BY created_at DESC LIMIT ?`

	var rows []changeLogRow
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(query), skillID, limit); err != nil {
		return nil, fmt.Errorf("list change logs: %w", err)
	}

	logs := make([]*domain.SkillChangeLog, 0, len(rows))
	for _, row := range rows {
		l := &domain.SkillChangeLog{
			ID:                 row.ID,
			SkillID:            row.SkillID,
			ChangeType:         domain.ChangeType(row.ChangeType),
			TriggeredByReplyID: row.TriggeredByReplyID.String,
			CreatedAt:          row.CreatedAt,
		}
		if err := decodeJSON(row.ChangeDetail, &l.ChangeDetail); err != nil {
			return nil, fmt.Errorf("decode change detail of %s: %w", row.ID, err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (a *SkillAdapter) LinkSourceEmail(ctx context.Context, link *domain.SkillSourceEmail) (bool, error) {
	res, err := a.db.ExecContext(ctx, a.db.Rebind(`
		INSERT INTO skill_source_emails (id, skill_id, email_id, contribution_type, contribution_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (skill_id, email_id, contribution_type) DO NOTHING`),
		link.ID, link.SkillID, link.EmailID, string(link.ContributionType), link.ContributionDetail, link.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("link source email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link source email: %w", err)
	}
	return n > 0, nil
}

type sourceRow struct {
	ID                 string    `db:"id"`
	SkillID            string    `db:"skill_id"`
	EmailID            string    `db:"email_id"`
	ContributionType   string    `db:"contribution_type"`
	ContributionDetail string    `db:"contribution_detail"`
	CreatedAt          time.Time `db:"created_at"`

	Subject     sql.NullString `db:"subject"`
	FromAddress sql.NullString `db:"from_address"`
	Body        sql.NullString `db:"body"`
	ReceivedAt  sql.NullTime   `db:"received_at"`
}

// ListSourceEmails returns links oldest first with the linked email
// attached when it is still stored.
func (a *SkillAdapter) ListSourceEmails(ctx context.Context, skillID string, limit int) ([]*domain.SkillSourceEmail, error) {
	query := `
		SELECT s.id, s.skill_id, s.email_id, s.contribution_type, s.contribution_detail, s.created_at,
		       e.subject, e.from_address, e.body, e.received_at
		FROM skill_source_emails s
		LEFT JOIN emails e ON e.id = s.email_id
		WHERE s.skill_id = ?
		ORDER BY s.created_at ASC LIMIT ?`

	var rows []sourceRow
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(query), skillID, limit); err != nil {
		return nil, fmt.Errorf("list source emails: %w", err)
	}

	links := make([]*domain.SkillSourceEmail, 0, len(rows))
	for _, row := range rows {
		link := &domain.SkillSourceEmail{
			ID:                 row.ID,
			SkillID:            row.SkillID,
			EmailID:            row.EmailID,
			ContributionType:   domain.ContributionType(row.ContributionType),
			ContributionDetail: row.ContributionDetail,
			CreatedAt:          row.CreatedAt,
		}
		if row.FromAddress.Valid {
			link.Email = &domain.Email{
				ID:          row.EmailID,
				FromAddress: row.FromAddress.String,
				Subject:     row.Subject.String,
				Body:        row.Body.String,
				ReceivedAt:  row.ReceivedAt.Time,
			}
		}
		links = append(links, link)
	}
	return links, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
