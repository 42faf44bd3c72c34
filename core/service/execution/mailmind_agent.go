// Package execution drafts replies for incoming emails.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/port/out"
	"mailmind_server/core/service/escalation"
	"mailmind_server/core/service/reply"
	"mailmind_server/core/service/run"
	"mailmind_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AgentName        = "ExecutionAgent"
	agentDescription = "Processes incoming emails and generates AI-powered replies"

	totalSteps = 6
)

// SkillMatcher is the part of the skill service execution depends on.
type SkillMatcher interface {
	Match(ctx context.Context, text string, category *string) ([]domain.SkillMatch, error)
	IncrementUsage(ctx context.Context, id string, success bool) error
}

// Agent implements in.ExecutionAgent.
type Agent struct {
	emails     out.EmailRepository
	replies    out.ReplyRepository
	classifier in.Classifier
	skills     SkillMatcher
	composer   *reply.Composer
	tracker    *run.Tracker
	log        zerolog.Logger
	now        func() time.Time
}

func NewAgent(
	emails out.EmailRepository,
	replies out.ReplyRepository,
	classifier in.Classifier,
	skills SkillMatcher,
	composer *reply.Composer,
	log zerolog.Logger,
) *Agent {
	return &Agent{
		emails:     emails,
		replies:    replies,
		classifier: classifier,
		skills:     skills,
		composer:   composer,
		tracker:    run.NewTracker(AgentName, agentDescription),
		log:        log.With().Str("component", "execution_agent").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ in.ExecutionAgent = (*Agent)(nil)

func (a *Agent) Status() domain.AgentStatus {
	return a.tracker.Status()
}

// Execute classifies the email when needed, matches it against the skill
// library and stores a draft reply, escalating when confidence is low.
func (a *Agent) Execute(ctx context.Context, req *in.ExecuteRequest) *domain.ExecutionResult {
	r := a.tracker.Start(req.OnProgress)
	result := &domain.ExecutionResult{RunID: r.ID, EmailID: req.EmailID, Matches: []domain.SkillMatch{}}
	defer func() { r.End(result.Status) }()

	if req.EmailID == "" {
		return fail(result, errors.New("email_id is required"))
	}

	r.Step(1, totalSteps, "Fetching email...")
	email, err := a.emails.GetByID(ctx, req.EmailID)
	if errors.Is(err, domain.ErrEmailNotFound) {
		return fail(result, fmt.Errorf("%w: %s", domain.ErrEmailNotFound, req.EmailID))
	}
	if err != nil {
		return fail(result, err)
	}

	r.Step(2, totalSteps, "Classifying email...")
	if !email.HasCategory() {
		verdict := a.classifier.Classify(ctx, email)
		if err := a.emails.UpdateClassification(ctx, email.ID, verdict); err != nil {
			return fail(result, err)
		}
		email.ApplyClassification(verdict)
	}

	r.Step(3, totalSteps, "Matching skills...")
	matches, err := a.skills.Match(ctx, email.Content(), email.Category)
	if err != nil {
		return fail(result, err)
	}
	result.Matches = matches

	r.Step(4, totalSteps, "Calculating confidence...")
	decision := escalation.Decide(matches, email)
	result.Confidence = decision.Confidence
	result.RequiresEscalation = decision.Escalate
	result.EscalationReason = decision.Reason
	metrics.Escalations.WithLabelValues(strconv.FormatBool(decision.Escalate)).Inc()

	r.Step(5, totalSteps, "Generating reply...")
	var best *domain.SkillMatch
	if len(matches) > 0 {
		best = &matches[0]
	}
	draft := a.composer.Compose(ctx, email, best, decision.Confidence)
	result.AIDraft = draft

	r.Step(6, totalSteps, "Saving reply...")
	saved := &domain.Reply{
		ID:        uuid.New().String(),
		EmailID:   email.ID,
		AIDraft:   draft,
		CreatedAt: a.now(),
	}
	if err := a.replies.Create(ctx, saved); err != nil {
		return fail(result, err)
	}
	result.ReplyID = saved.ID

	if err := a.emails.MarkProcessed(ctx, email.ID); err != nil {
		return fail(result, err)
	}
	if best != nil && !decision.Escalate {
		if err := a.skills.IncrementUsage(ctx, best.SkillID, true); err != nil {
			return fail(result, err)
		}
	}

	result.Success = true
	result.Status = domain.StatusDraftReady
	if decision.Escalate {
		result.Status = domain.StatusEscalated
	}
	a.log.Debug().
		Str("email_id", email.ID).
		Str("status", string(result.Status)).
		Float64("confidence", decision.Confidence).
		Msg("email processed")
	return result
}

// ExecuteBatch processes emails one after another. A failing email does not
// stop the batch; a cancelled context does.
func (a *Agent) ExecuteBatch(ctx context.Context, emailIDs []string, progress domain.ProgressFunc) *domain.BatchResult {
	batch := &domain.BatchResult{Total: len(emailIDs), Results: make([]domain.BatchItem, 0, len(emailIDs))}

	for i, id := range emailIDs {
		if ctx.Err() != nil {
			break
		}
		if progress != nil {
			progress(i+1, len(emailIDs), fmt.Sprintf("Processing email %d/%d", i+1, len(emailIDs)))
		}

		res := a.Execute(ctx, &in.ExecuteRequest{EmailID: id})
		item := domain.BatchItem{EmailID: id, Success: res.Success, Status: res.Status, ReplyID: res.ReplyID}
		if len(res.Errors) > 0 {
			item.Error = res.Errors[0]
		}
		if res.Success {
			batch.Completed++
		}
		batch.Results = append(batch.Results, item)
	}
	return batch
}

func fail(result *domain.ExecutionResult, err error) *domain.ExecutionResult {
	result.Success = false
	result.Status = domain.StatusFailed
	result.Errors = append(result.Errors, err.Error())
	return result
}
