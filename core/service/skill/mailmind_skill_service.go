package skill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/pkg/apperr"
	"mailmind_server/pkg/keylock"
	"mailmind_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxMutateAttempts = 3
	defaultListLimit  = 50
)

// ErrNoChange is returned by a MutateFunc to skip the write.
var ErrNoChange = errors.New("skill unchanged")

// MutateFunc edits skill in place and returns the change logs to commit
// together with it.
type MutateFunc func(skill *domain.Skill) ([]*domain.SkillChangeLog, error)

// Service implements in.SkillService.
type Service struct {
	skills    out.SkillRepository
	history   out.HistoryRepository
	snapshots out.SnapshotStore
	graph     out.SkillGraph
	locks     *keylock.Locker
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates a skill service. graph may be nil.
func NewService(
	skills out.SkillRepository,
	history out.HistoryRepository,
	snapshots out.SnapshotStore,
	graph out.SkillGraph,
	log zerolog.Logger,
) *Service {
	return &Service{
		skills:    skills,
		history:   history,
		snapshots: snapshots,
		graph:     graph,
		locks:     keylock.New(),
		log:       log.With().Str("component", "skill_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ in.SkillService = (*Service)(nil)

func (s *Service) List(ctx context.Context, filter domain.SkillFilter) ([]*domain.Skill, error) {
	skills, err := s.skills.List(ctx, filter)
	if err != nil {
		return nil, apperr.DatabaseError("list skills", err)
	}
	return skills, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Skill, error) {
	skill, err := s.skills.GetByID(ctx, id)
	if err != nil {
		return nil, wrapLookup(err)
	}
	return skill, nil
}

func (s *Service) GetByNameEn(ctx context.Context, nameEn string) (*domain.Skill, error) {
	skill, err := s.skills.GetByNameEn(ctx, nameEn)
	if err != nil {
		return nil, wrapLookup(err)
	}
	return skill, nil
}

// Create validates and stores a new skill.
func (s *Service) Create(ctx context.Context, req *in.CreateSkillRequest) (*domain.Skill, error) {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, apperr.MissingField("name")
	case strings.TrimSpace(req.NameEn) == "":
		return nil, apperr.MissingField("name_en")
	case strings.TrimSpace(req.Category) == "":
		return nil, apperr.MissingField("category")
	}

	now := s.now()
	skill := &domain.Skill{
		ID:              uuid.New().String(),
		Name:            req.Name,
		NameEn:          req.NameEn,
		Category:        req.Category,
		Description:     req.Description,
		TriggerKeywords: nonNil(req.TriggerKeywords),
		Rules:           withRuleIDs(req.Rules),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.insert(ctx, skill); err != nil {
		return nil, err
	}
	return skill, nil
}

// Update patches a skill through Mutate.
func (s *Service) Update(ctx context.Context, id string, req *in.UpdateSkillRequest) (*domain.Skill, error) {
	return s.Mutate(ctx, id, func(skill *domain.Skill) ([]*domain.SkillChangeLog, error) {
		if req.Name != nil {
			skill.Name = *req.Name
		}
		if req.Category != nil {
			skill.Category = *req.Category
		}
		if req.Description != nil {
			skill.Description = *req.Description
		}
		if req.TriggerKeywords != nil {
			skill.TriggerKeywords = nonNil(*req.TriggerKeywords)
		}
		if req.Rules != nil {
			skill.Rules = withRuleIDs(*req.Rules)
		}
		if req.IsActive != nil {
			skill.IsActive = *req.IsActive
		}
		return nil, nil
	})
}

// Deactivate soft-deletes a skill; it stays stored but stops matching.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	_, err := s.Mutate(ctx, id, func(skill *domain.Skill) ([]*domain.SkillChangeLog, error) {
		if !skill.IsActive {
			return nil, ErrNoChange
		}
		skill.IsActive = false
		return nil, nil
	})
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	return err
}

func (s *Service) IncrementUsage(ctx context.Context, id string, success bool) error {
	if err := s.skills.IncrementUsage(ctx, id, success); err != nil {
		return wrapLookup(err)
	}
	return nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.skills.Categories(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list categories", err)
	}
	return categories, nil
}

// Match loads active skills, optionally restricted to category, and ranks them.
func (s *Service) Match(ctx context.Context, text string, category *string) ([]domain.SkillMatch, error) {
	filter := domain.SkillFilter{ActiveOnly: true}
	if category != nil {
		filter.Category = *category
	}
	skills, err := s.skills.List(ctx, filter)
	if err != nil {
		return nil, apperr.DatabaseError("load skills", err)
	}
	return Match(skills, text), nil
}

// Mutate runs fn against a fresh copy of the skill and commits the result
// with an optimistic version check. Writers to one skill are serialized
// in-process; a conflict with another process re-reads and retries.
func (s *Service) Mutate(ctx context.Context, id string, fn MutateFunc) (*domain.Skill, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 1; attempt <= maxMutateAttempts; attempt++ {
		current, err := s.skills.GetByID(ctx, id)
		if err != nil {
			return nil, wrapLookup(err)
		}

		working := current.Clone()
		logs, err := fn(working)
		if err != nil {
			if errors.Is(err, ErrNoChange) {
				metrics.SkillMutations.WithLabelValues("noop").Inc()
			}
			return nil, err
		}

		now := s.now()
		working.UpdatedAt = now
		for _, l := range logs {
			if l.ID == "" {
				l.ID = uuid.New().String()
			}
			l.SkillID = working.ID
			l.CreatedAt = now
		}

		err = s.skills.Update(ctx, working, current.Version, logs...)
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.SkillMutations.WithLabelValues("conflict").Inc()
			s.log.Debug().Str("skill_id", id).Int("attempt", attempt).Msg("version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, apperr.DatabaseError("update skill", err)
		}

		metrics.SkillMutations.WithLabelValues("committed").Inc()
		return working, nil
	}

	return nil, apperr.Conflict(fmt.Sprintf("skill %s changed concurrently", id)).WithError(domain.ErrVersionConflict)
}

// RecordSource links an email to a skill and mirrors the edge into the
// provenance graph when one is configured. Graph failures are only logged.
func (s *Service) RecordSource(ctx context.Context, skill *domain.Skill, emailID string, kind domain.ContributionType, detail string) error {
	_, err := s.history.LinkSourceEmail(ctx, &domain.SkillSourceEmail{
		ID:                 uuid.New().String(),
		SkillID:            skill.ID,
		EmailID:            emailID,
		ContributionType:   kind,
		ContributionDetail: detail,
		CreatedAt:          s.now(),
	})
	if err != nil {
		return apperr.DatabaseError("link source email", err)
	}

	if s.graph != nil {
		if err := s.graph.RecordContribution(ctx, skill, emailID, kind); err != nil {
			s.log.Warn().Err(err).Str("skill_id", skill.ID).Str("email_id", emailID).Msg("graph contribution not recorded")
		}
	}
	return nil
}

// RecordCollaborations stores skill collaboration hints in the graph.
func (s *Service) RecordCollaborations(ctx context.Context, fromNameEn string, to []string) {
	if s.graph == nil {
		return
	}
	for _, target := range to {
		if target == "" || target == fromNameEn {
			continue
		}
		if err := s.graph.RecordCollaboration(ctx, fromNameEn, target); err != nil {
			s.log.Warn().Err(err).Str("from", fromNameEn).Str("to", target).Msg("graph collaboration not recorded")
		}
	}
}

// Collaborators lists skills linked to nameEn in the graph.
func (s *Service) Collaborators(ctx context.Context, nameEn string) ([]string, error) {
	if s.graph == nil {
		return []string{}, nil
	}
	names, err := s.graph.Collaborators(ctx, nameEn)
	if err != nil {
		return nil, apperr.ExternalError("skill graph", err)
	}
	return names, nil
}

func (s *Service) SourceEmails(ctx context.Context, skillID string, limit int) ([]*domain.SkillSourceEmail, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	links, err := s.history.ListSourceEmails(ctx, skillID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list source emails", err)
	}
	return links, nil
}

func (s *Service) ChangeLog(ctx context.Context, skillID string, limit int) ([]*domain.SkillChangeLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	logs, err := s.history.ListChangeLogs(ctx, skillID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list change log", err)
	}
	return logs, nil
}

func (s *Service) insert(ctx context.Context, skill *domain.Skill) error {
	err := s.skills.Create(ctx, skill)
	switch {
	case errors.Is(err, domain.ErrDuplicateSkill):
		return apperr.AlreadyExists("skill " + skill.NameEn).WithError(err)
	case err != nil:
		return apperr.DatabaseError("create skill", err)
	}
	return nil
}

func wrapLookup(err error) error {
	if errors.Is(err, domain.ErrSkillNotFound) {
		return apperr.NotFound("skill").WithError(err)
	}
	return apperr.DatabaseError("load skill", err)
}

// NewRuleID returns a rule id of the form rule_xxxxxxxx.
func NewRuleID() string {
	return "rule_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func withRuleIDs(rules []domain.Rule) []domain.Rule {
	result := make([]domain.Rule, len(rules))
	for i, r := range rules {
		r = r.Clone()
		if r.RuleID == "" {
			r.RuleID = NewRuleID()
		}
		r.TriggerKeywords = nonNil(r.TriggerKeywords)
		r.Conditions = nonNil(r.Conditions)
		r.ActionSteps = nonNil(r.ActionSteps)
		result[i] = r
	}
	return result
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
