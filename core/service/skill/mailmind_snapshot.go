package skill

import (
	"context"
	"errors"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"
	"mailmind_server/pkg/apperr"

	"github.com/google/uuid"
)

// ExportSnapshot writes every skill, active or not, to the snapshot store.
func (s *Service) ExportSnapshot(ctx context.Context) (*domain.SkillSnapshot, error) {
	skills, err := s.skills.List(ctx, domain.SkillFilter{})
	if err != nil {
		return nil, apperr.DatabaseError("list skills", err)
	}

	snapshot := domain.NewSkillSnapshot(skills, s.now())
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		return nil, apperr.ExternalError("snapshot store", err)
	}

	s.log.Info().Int("total", snapshot.Total).Msg("skill snapshot exported")
	return snapshot, nil
}

// ImportSnapshot loads the snapshot and inserts skills whose name_en is not
// stored yet. Existing skills are never overwritten. Returns the number
// of inserted skills.
func (s *Service) ImportSnapshot(ctx context.Context) (int, error) {
	snapshot, err := s.snapshots.Load(ctx)
	if errors.Is(err, out.ErrNoSnapshot) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.ExternalError("snapshot store", err)
	}

	imported := 0
	for i := range snapshot.Skills {
		doc := snapshot.Skills[i]
		if doc.NameEn == "" {
			continue
		}

		_, err := s.skills.GetByNameEn(ctx, doc.NameEn)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrSkillNotFound) {
			return imported, apperr.DatabaseError("load skill", err)
		}

		skill := doc.Clone()
		if skill.ID == "" {
			skill.ID = uuid.New().String()
		}
		skill.TriggerKeywords = nonNil(skill.TriggerKeywords)
		skill.Rules = withRuleIDs(skill.Rules)
		now := s.now()
		if skill.CreatedAt.IsZero() {
			skill.CreatedAt = now
		}
		skill.UpdatedAt = now

		err = s.insert(ctx, skill)
		if errors.Is(err, domain.ErrDuplicateSkill) {
			continue
		}
		if err != nil {
			return imported, err
		}
		imported++
	}

	s.log.Info().Int("imported", imported).Int("total", len(snapshot.Skills)).Msg("skill snapshot imported")
	return imported, nil
}
