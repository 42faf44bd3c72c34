// Package evolution refines skills from reviewer edits of AI drafts.
package evolution

import (
	"context"
	"errors"
	"fmt"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/core/service/run"
	"mailmind_server/core/service/skill"
	"mailmind_server/pkg/metrics"

	"github.com/rs/zerolog"
)

const (
	AgentName        = "EvolutionAgent"
	agentDescription = "Learns from human edits to improve Skills over time"

	// MinEditThreshold is the smallest EditDistance worth analyzing.
	MinEditThreshold = 20

	totalSteps = 5
)

// SkillStore is the part of the skill service evolution depends on.
type SkillStore interface {
	Get(ctx context.Context, id string) (*domain.Skill, error)
	List(ctx context.Context, filter domain.SkillFilter) ([]*domain.Skill, error)
	Match(ctx context.Context, text string, category *string) ([]domain.SkillMatch, error)
	Mutate(ctx context.Context, id string, fn skill.MutateFunc) (*domain.Skill, error)
	RecordSource(ctx context.Context, s *domain.Skill, emailID string, kind domain.ContributionType, detail string) error
	ExportSnapshot(ctx context.Context) (*domain.SkillSnapshot, error)
}

// Agent implements in.EvolutionAgent.
type Agent struct {
	replies out.ReplyRepository
	emails  out.EmailRepository
	skills  SkillStore
	llm     out.LLMClient
	tracker *run.Tracker
	log     zerolog.Logger
}

func NewAgent(replies out.ReplyRepository, emails out.EmailRepository, skills SkillStore, client out.LLMClient, log zerolog.Logger) *Agent {
	return &Agent{
		replies: replies,
		emails:  emails,
		skills:  skills,
		llm:     client,
		tracker: run.NewTracker(AgentName, agentDescription),
		log:     log.With().Str("component", "evolution_agent").Logger(),
	}
}

var _ in.EvolutionAgent = (*Agent)(nil)

func (a *Agent) Status() domain.AgentStatus {
	return a.tracker.Status()
}

// Evolve analyzes one reviewed reply and applies the proposed improvements.
// Each step failure ends the run; a failing improvement is skipped.
func (a *Agent) Evolve(ctx context.Context, req *in.EvolveRequest) *domain.EvolutionResult {
	r := a.tracker.Start(req.OnProgress)
	result := &domain.EvolutionResult{RunID: r.ID, ReplyID: req.ReplyID, Changes: []domain.AppliedChange{}}
	defer func() { r.End(result.Status) }()

	r.Step(1, totalSteps, "Fetching reply data...")
	reply, email, err := a.load(ctx, req.ReplyID)
	if err != nil {
		return fail(result, err)
	}

	if !reply.HasHumanEdit() {
		return noChanges(result, "No human edits to learn from")
	}
	if d := EditDistance(reply.AIDraft, *reply.HumanEdited); d < MinEditThreshold {
		return noChanges(result, fmt.Sprintf("Edit too minor (%d chars). Skipping evolution.", d))
	}

	r.Step(2, totalSteps, "Finding related skills...")
	related, err := a.relatedSkills(ctx, email)
	if err != nil {
		return fail(result, err)
	}
	if len(related) == 0 {
		return noChanges(result, "No related skills found to evolve")
	}

	r.Step(3, totalSteps, "Analyzing differences...")
	summary, improvements := a.analyze(ctx, email, reply, related)
	result.Summary = summary
	if len(improvements) == 0 {
		return noChanges(result, "No actionable improvements identified")
	}

	r.Step(4, totalSteps, "Applying skill improvements...")
	result.Changes = a.applyAll(ctx, improvements, related, reply.ID, email.ID)

	r.Step(5, totalSteps, "Saving updated skills...")
	if _, err := a.skills.ExportSnapshot(ctx); err != nil {
		return fail(result, err)
	}

	result.Success = true
	result.Status = domain.StatusNoChanges
	if len(result.Changes) > 0 {
		result.Status = domain.StatusSkillUpdated
	}
	a.log.Info().Str("reply_id", reply.ID).Int("changes", len(result.Changes)).Msg("evolution finished")
	return result
}

func (a *Agent) load(ctx context.Context, replyID string) (*domain.Reply, *domain.Email, error) {
	reply, err := a.replies.GetByID(ctx, replyID)
	if errors.Is(err, domain.ErrReplyNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrReplyNotFound, replyID)
	}
	if err != nil {
		return nil, nil, err
	}

	email, err := a.emails.GetByID(ctx, reply.EmailID)
	if errors.Is(err, domain.ErrEmailNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrEmailNotFound, reply.EmailID)
	}
	if err != nil {
		return nil, nil, err
	}
	return reply, email, nil
}

// relatedSkills returns the skills matching the email, or every active skill
// of the email's category when nothing matches.
func (a *Agent) relatedSkills(ctx context.Context, email *domain.Email) ([]*domain.Skill, error) {
	matches, err := a.skills.Match(ctx, email.Content(), email.Category)
	if err != nil {
		return nil, err
	}

	related := make([]*domain.Skill, 0, len(matches))
	for _, m := range matches {
		s, err := a.skills.Get(ctx, m.SkillID)
		if err != nil {
			return nil, err
		}
		related = append(related, s)
	}
	if len(related) > 0 || !email.HasCategory() {
		return related, nil
	}

	return a.skills.List(ctx, domain.SkillFilter{ActiveOnly: true, Category: email.CategoryValue()})
}

func (a *Agent) analyze(ctx context.Context, email *domain.Email, reply *domain.Reply, related []*domain.Skill) (string, []domain.Improvement) {
	if a.llm == nil {
		return "", nil
	}

	text, err := a.llm.Complete(ctx, analysisPrompt(email, reply, related))
	if err != nil {
		a.log.Warn().Err(err).Str("reply_id", reply.ID).Msg("diff analysis failed")
		return "", nil
	}

	summary, improvements, ok := parseAnalysis(text)
	if !ok {
		a.log.Warn().Str("reply_id", reply.ID).Msg("diff analysis returned no parsable JSON")
	}
	return summary, improvements
}

func (a *Agent) applyAll(ctx context.Context, improvements []domain.Improvement, related []*domain.Skill, replyID, emailID string) []domain.AppliedChange {
	byNameEn := make(map[string]*domain.Skill, len(related))
	for _, s := range related {
		if _, seen := byNameEn[s.NameEn]; !seen {
			byNameEn[s.NameEn] = s
		}
	}

	changes := []domain.AppliedChange{}
	for _, imp := range improvements {
		target, ok := byNameEn[imp.Target()]
		if !ok {
			continue
		}

		var detail string
		updated, err := a.skills.Mutate(ctx, target.ID, func(s *domain.Skill) ([]*domain.SkillChangeLog, error) {
			entry, d, err := apply(s, imp, replyID)
			if err != nil {
				return nil, err
			}
			detail = d
			return []*domain.SkillChangeLog{entry}, nil
		})
		if errors.Is(err, skill.ErrNoChange) {
			continue
		}
		if err != nil {
			a.log.Warn().Err(err).Str("skill_id", target.ID).Str("type", string(imp.Kind())).Msg("improvement skipped")
			continue
		}

		metrics.SkillChanges.WithLabelValues(string(imp.Kind())).Inc()
		changes = append(changes, domain.AppliedChange{
			ChangeType: imp.Kind(),
			SkillID:    updated.ID,
			SkillName:  updated.Name,
			Detail:     detail,
		})

		if err := a.skills.RecordSource(ctx, updated, emailID, domain.ContributionEvolutionUpdate, imp.Summary()); err != nil {
			a.log.Warn().Err(err).Str("skill_id", updated.ID).Str("email_id", emailID).Msg("source email not linked")
		}
	}
	return changes
}

func fail(result *domain.EvolutionResult, err error) *domain.EvolutionResult {
	result.Success = false
	result.Status = domain.StatusFailed
	result.Errors = append(result.Errors, err.Error())
	return result
}

func noChanges(result *domain.EvolutionResult, message string) *domain.EvolutionResult {
	result.Success = true
	result.Status = domain.StatusNoChanges
	result.Message = message
	return result
}
