// Package learning extracts skills from historical customer service emails.
package learning

import (
	"context"
	"errors"
	"fmt"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/core/service/run"
	"mailmind_server/core/service/skill"

	"github.com/rs/zerolog"
)

const (
	AgentName        = "LearningAgent"
	agentDescription = "Analyzes historical emails to create and update Skills"

	// DefaultEmailCount is used when a request does not name a count.
	DefaultEmailCount = 100

	emailsPerCategory = 20
	totalSteps        = 5
)

// SkillStore is the part of the skill service learning depends on.
type SkillStore interface {
	GetByNameEn(ctx context.Context, nameEn string) (*domain.Skill, error)
	Create(ctx context.Context, req *in.CreateSkillRequest) (*domain.Skill, error)
	Mutate(ctx context.Context, id string, fn skill.MutateFunc) (*domain.Skill, error)
	RecordSource(ctx context.Context, s *domain.Skill, emailID string, kind domain.ContributionType, detail string) error
	RecordCollaborations(ctx context.Context, fromNameEn string, to []string)
	ExportSnapshot(ctx context.Context) (*domain.SkillSnapshot, error)
}

// Agent implements in.LearningAgent.
type Agent struct {
	emails       out.EmailRepository
	skills       SkillStore
	llm          out.LLMClient
	defaultCount int
	tracker      *run.Tracker
	log          zerolog.Logger
}

// NewAgent creates a learning agent. defaultCount <= 0 selects DefaultEmailCount.
func NewAgent(emails out.EmailRepository, skills SkillStore, client out.LLMClient, defaultCount int, log zerolog.Logger) *Agent {
	if defaultCount <= 0 {
		defaultCount = DefaultEmailCount
	}
	return &Agent{
		emails:       emails,
		skills:       skills,
		llm:          client,
		defaultCount: defaultCount,
		tracker:      run.NewTracker(AgentName, agentDescription),
		log:          log.With().Str("component", "learning_agent").Logger(),
	}
}

var _ in.LearningAgent = (*Agent)(nil)

func (a *Agent) Status() domain.AgentStatus {
	return a.tracker.Status()
}

type categoryGroup struct {
	category string
	emails   []*domain.Email
}

// outcome of one category; a skipped category leaves both flags false.
type outcome struct {
	created       bool
	updated       bool
	collaborative []string
}

func (a *Agent) Learn(ctx context.Context, req *in.LearnRequest) *domain.LearningResult {
	r := a.tracker.Start(req.OnProgress)
	result := &domain.LearningResult{RunID: r.ID, CollaborativeSkills: []string{}}
	defer func() { r.End(result.Status) }()

	count := req.EmailCount
	if count <= 0 {
		count = a.defaultCount
	}

	r.Step(1, totalSteps, "Fetching customer service emails...")
	emails, err := a.emails.List(ctx, domain.EmailFilter{CustomerServiceOnly: true, Limit: count})
	if err != nil {
		return fail(result, err)
	}
	if len(emails) == 0 {
		result.Success = true
		result.Status = domain.StatusCompleted
		result.Message = "No customer service emails found"
		return result
	}

	r.Step(2, totalSteps, "Grouping emails by category...")
	groups := groupByCategory(emails, req.Categories)

	r.Step(3, totalSteps, "Extracting skills from emails...")
	for i, g := range groups {
		if err := ctx.Err(); err != nil {
			return fail(result, err)
		}
		r.Step(3, totalSteps, fmt.Sprintf("Processing category %d/%d: %s", i+1, len(groups), g.category))

		o, err := a.learnCategory(ctx, g, req.Force)
		if err != nil {
			return fail(result, err)
		}
		switch {
		case o.created:
			result.SkillsCreated++
		case o.updated:
			result.SkillsUpdated++
		}
		result.CollaborativeSkills = append(result.CollaborativeSkills, o.collaborative...)
	}

	r.Step(4, totalSteps, "Saving skills to file...")
	if _, err := a.skills.ExportSnapshot(ctx); err != nil {
		return fail(result, err)
	}

	r.Step(5, totalSteps, "Learning complete!")
	result.Success = true
	result.Status = domain.StatusCompleted
	result.EmailsProcessed = len(emails)
	result.CategoriesProcessed = len(groups)

	a.log.Info().
		Int("emails", result.EmailsProcessed).
		Int("categories", result.CategoriesProcessed).
		Int("created", result.SkillsCreated).
		Int("updated", result.SkillsUpdated).
		Msg("learning completed")
	return result
}

// learnCategory asks the model for one skill describing the group. Model
// failures skip the category; storage failures are returned.
func (a *Agent) learnCategory(ctx context.Context, g categoryGroup, force bool) (outcome, error) {
	if a.llm == nil {
		a.log.Warn().Str("category", g.category).Msg("no LLM configured, category skipped")
		return outcome{}, nil
	}

	sample := g.emails[:min(len(g.emails), emailsPerCategory)]
	text, err := a.llm.Complete(ctx, extractionPrompt(g.category, sample))
	if err != nil {
		a.log.Warn().Err(err).Str("category", g.category).Msg("skill extraction failed")
		return outcome{}, nil
	}
	extracted, ok := parseExtraction(text)
	if !ok {
		a.log.Warn().Str("category", g.category).Msg("skill extraction answer is not JSON")
		return outcome{}, nil
	}
	req := extracted.request(g.category)

	var (
		o      = outcome{collaborative: extracted.Collaborative}
		target *domain.Skill
	)
	existing, err := a.skills.GetByNameEn(ctx, req.NameEn)
	switch {
	case errors.Is(err, domain.ErrSkillNotFound):
		target, err = a.skills.Create(ctx, req)
		if err != nil {
			return outcome{}, err
		}
		o.created = true
	case err != nil:
		return outcome{}, err
	case force:
		target, err = a.skills.Mutate(ctx, existing.ID, replaceDefinition(req))
		if err != nil {
			return outcome{}, err
		}
		o.updated = true
	default:
		target = existing
		o.updated = true
	}

	detail := "Used for learning category: " + g.category
	for _, email := range sample {
		if err := a.skills.RecordSource(ctx, target, email.ID, domain.ContributionInitialLearning, detail); err != nil {
			return outcome{}, err
		}
	}
	a.skills.RecordCollaborations(ctx, target.NameEn, extracted.Collaborative)
	return o, nil
}

func replaceDefinition(req *in.CreateSkillRequest) skill.MutateFunc {
	return func(s *domain.Skill) ([]*domain.SkillChangeLog, error) {
		s.Name = req.Name
		s.Category = req.Category
		s.Description = req.Description
		s.TriggerKeywords = req.TriggerKeywords
		s.Rules = req.Rules
		s.IsActive = true
		return nil, nil
	}
}

// groupByCategory keeps the order in which categories are first seen.
func groupByCategory(emails []*domain.Email, only []string) []categoryGroup {
	allowed := make(map[string]bool, len(only))
	for _, c := range only {
		allowed[c] = true
	}

	var groups []categoryGroup
	index := make(map[string]int)
	for _, e := range emails {
		category := e.CategoryValue()
		if category == "" {
			category = domain.CategoryOther
		}
		if len(allowed) > 0 && !allowed[category] {
			continue
		}
		i, ok := index[category]
		if !ok {
			i = len(groups)
			index[category] = i
			groups = append(groups, categoryGroup{category: category})
		}
		groups[i].emails = append(groups[i].emails, e)
	}
	return groups
}

func fail(result *domain.LearningResult, err error) *domain.LearningResult {
	result.Success = false
	result.Status = domain.StatusFailed
	result.Errors = append(result.Errors, err.Error())
	return result
}
