package in

import (
	"context"

	"mailmind_server/core/domain"
)

// SkillService manages the skill library.
type SkillService interface {
	List(ctx context.Context, filter domain.SkillFilter) ([]*domain.Skill, error)
	Get(ctx context.Context, id string) (*domain.Skill, error)
	GetByNameEn(ctx context.Context, nameEn string) (*domain.Skill, error)
	Create(ctx context.Context, req *CreateSkillRequest) (*domain.Skill, error)
	Update(ctx context.Context, id string, req *UpdateSkillRequest) (*domain.Skill, error)
	Deactivate(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string, success bool) error
	Categories(ctx context.Context) ([]string, error)

	// Match ranks active skills against text, optionally within one category.
	Match(ctx context.Context, text string, category *string) ([]domain.SkillMatch, error)

	// === Snapshot ===
	ExportSnapshot(ctx context.Context) (*domain.SkillSnapshot, error)
	ImportSnapshot(ctx context.Context) (int, error)

	// === Provenance ===
	SourceEmails(ctx context.Context, skillID string, limit int) ([]*domain.SkillSourceEmail, error)
	ChangeLog(ctx context.Context, skillID string, limit int) ([]*domain.SkillChangeLog, error)
}

// CreateSkillRequest creates a skill. Rules without an id get one generated.
type CreateSkillRequest struct {
	Name            string        `json:"name"`
	NameEn          string        `json:"name_en"`
	Category        string        `json:"category"`
	Description     string        `json:"description"`
	TriggerKeywords []string      `json:"trigger_keywords"`
	Rules           []domain.Rule `json:"rules"`
}

// UpdateSkillRequest patches a skill; nil fields are left unchanged.
type UpdateSkillRequest struct {
	Name            *string        `json:"name"`
	Category        *string        `json:"category"`
	Description     *string        `json:"description"`
	TriggerKeywords *[]string      `json:"trigger_keywords"`
	Rules           *[]domain.Rule `json:"rules"`
	IsActive        *bool          `json:"is_active"`
}
