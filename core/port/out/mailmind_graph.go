package out

import (
	"context"

	"mailmind_server/core/domain"
)

// SkillGraph records skill provenance and collaboration edges.
type SkillGraph interface {
	RecordContribution(ctx context.Context, skill *domain.Skill, emailID string, kind domain.ContributionType) error
	RecordCollaboration(ctx context.Context, fromNameEn, toNameEn string) error
	Collaborators(ctx context.Context, nameEn string) ([]string, error)
}
