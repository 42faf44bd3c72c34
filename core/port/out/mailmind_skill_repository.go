package out

import (
	"context"

	"mailmind_server/core/domain"
)

// SkillRepository persists skills. Lookups return domain.ErrSkillNotFound
// when nothing matches.
type SkillRepository interface {
	// List returns skills ordered by usage_count desc.
	List(ctx context.Context, filter domain.SkillFilter) ([]*domain.Skill, error)
	GetByID(ctx context.Context, id string) (*domain.Skill, error)
	GetByNameEn(ctx context.Context, nameEn string) (*domain.Skill, error)

	// Create inserts a skill at version 1. A taken name_en yields
	// domain.ErrDuplicateSkill.
	Create(ctx context.Context, skill *domain.Skill) error

	// Update writes skill only if the stored version still equals
	// expectedVersion, appending logs in the same transaction. On success
	// skill.Version is bumped; a lost race yields domain.ErrVersionConflict.
	Update(ctx context.Context, skill *domain.Skill, expectedVersion int, logs ...*domain.SkillChangeLog) error

	IncrementUsage(ctx context.Context, id string, success bool) error
	Categories(ctx context.Context) ([]string, error)
}

// HistoryRepository stores skill provenance.
type HistoryRepository interface {
	ListChangeLogs(ctx context.Context, skillID string, limit int) ([]*domain.SkillChangeLog, error)

	// LinkSourceEmail is idempotent on (skill, email, contribution type) and
	// reports whether a new link was written.
	LinkSourceEmail(ctx context.Context, link *domain.SkillSourceEmail) (bool, error)
	ListSourceEmails(ctx context.Context, skillID string, limit int) ([]*domain.SkillSourceEmail, error)
}
