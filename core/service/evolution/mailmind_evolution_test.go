package evolution

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/service/skill"
	"mailmind_server/internal/memstore"

	"github.com/rs/zerolog"
)

const (
	aiDraft    = "Dear Alice, your refund is processing."
	humanDraft = "Dear Alice, your refund has been approved and will arrive within 5 business days."
)

type fixture struct {
	agent     *Agent
	skills    *memstore.Skills
	snapshots *memstore.Snapshots
	llm       *memstore.LLM
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T, edited *string, skills ...*domain.Skill) *fixture {
	t.Helper()

	if skills == nil {
		skills = []*domain.Skill{
			{
				ID:              "s1",
				Name:            "Refund handling",
				NameEn:          "refund-handling",
				Category:        domain.CategoryRefundCancellation,
				TriggerKeywords: []string{"refund"},
				Rules: []domain.Rule{
					{RuleID: "rule_1", Name: "refund status", Conditions: []string{"refund"}, ResponseTemplate: aiDraft, Priority: 1},
				},
				IsActive: true,
			},
			{
				ID:              "s2",
				Name:            "Shipping delay",
				NameEn:          "shipping-delay",
				Category:        domain.CategoryLogisticsIssue,
				TriggerKeywords: []string{"shipping"},
				IsActive:        true,
			},
		}
	}

	repo := memstore.NewSkills(skills...)
	snaps := &memstore.Snapshots{}
	svc := skill.NewService(repo, repo, snaps, nil, zerolog.Nop())

	emails := memstore.NewEmails(&domain.Email{
		ID:       "e1",
		FromName: "Alice",
		Subject:  "Refund request",
		Body:     "Where is my refund? I returned the item last week and still nothing.",
		Category: strPtr(domain.CategoryRefundCancellation),
	})
	replies := memstore.NewReplies(&domain.Reply{ID: "r1", EmailID: "e1", AIDraft: aiDraft, HumanEdited: edited})
	client := &memstore.LLM{}

	return &fixture{
		agent:     NewAgent(replies, emails, svc, client, zerolog.Nop()),
		skills:    repo,
		snapshots: snaps,
		llm:       client,
	}
}

func (f *fixture) evolve() *domain.EvolutionResult {
	return f.agent.Evolve(context.Background(), &in.EvolveRequest{ReplyID: "r1"})
}

func TestEvolveNoChangeCases(t *testing.T) {
	tests := []struct {
		name    string
		edited  *string
		reply   string
		message string
	}{
		{name: "no edit", edited: nil, message: "No human edits to learn from"},
		{name: "empty edit", edited: strPtr(""), message: "No human edits to learn from"},
		{name: "minor edit", edited: strPtr("Dear Alice, your refund is PROCEssing."), message: "Edit too minor (5 chars). Skipping evolution."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.edited)
			result := f.evolve()

			if !result.Success || result.Status != domain.StatusNoChanges {
				t.Fatalf("expected successful no_changes, got %+v", result)
			}
			if result.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, result.Message)
			}
			if len(f.llm.Prompts()) != 0 {
				t.Errorf("expected no analysis call")
			}
		})
	}
}

func TestEvolveMissingReply(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft))

	result := f.agent.Evolve(context.Background(), &in.EvolveRequest{ReplyID: "nope"})
	if result.Success || result.Status != domain.StatusFailed {
		t.Fatalf("expected failed run, got %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "reply not found") {
		t.Errorf("expected reply not found error, got %v", result.Errors)
	}
}

func TestEvolveSkipsUnknownTargets(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft))
	f.llm.Reply = "```json\n" + `{
		"summary": "Reviewer gave a concrete timeline",
		"improvements": [
			{"type": "keyword_added", "target_skill_name_en": "refund-handling", "description": "reimbursement wording", "details": {"keywords": ["reimbursement", "REFUND"]}},
			{"type": "keyword_added", "target_skill_name_en": "nonexistent-skill", "details": {"keywords": ["ghost"]}}
		]
	}` + "\n```"

	result := f.evolve()

	if result.Status != domain.StatusSkillUpdated {
		t.Fatalf("expected skill_updated, got %+v", result)
	}
	if len(result.Changes) != 1 {
		t.Fatalf("expected exactly 1 change, got %+v", result.Changes)
	}
	change := result.Changes[0]
	if change.ChangeType != domain.ChangeKeywordAdded || change.SkillID != "s1" || change.SkillName != "Refund handling" {
		t.Errorf("unexpected change: %+v", change)
	}
	if change.Detail != "Added keywords: reimbursement" {
		t.Errorf("expected detail %q, got %q", "Added keywords: reimbursement", change.Detail)
	}
	if result.Summary != "Reviewer gave a concrete timeline" {
		t.Errorf("expected summary carried over, got %q", result.Summary)
	}

	stored, _ := f.skills.GetByID(context.Background(), "s1")
	if strings.Join(stored.TriggerKeywords, ",") != "refund,reimbursement" {
		t.Errorf("unexpected keywords: %v", stored.TriggerKeywords)
	}

	logs := f.skills.Changes()
	if len(logs) != 1 || logs[0].TriggeredByReplyID != "r1" {
		t.Errorf("expected one change log for r1, got %+v", logs)
	}
	sources := f.skills.Sources()
	if len(sources) != 1 || sources[0].ContributionType != domain.ContributionEvolutionUpdate || sources[0].ContributionDetail != "reimbursement wording" {
		t.Errorf("unexpected source links: %+v", sources)
	}
	if f.snapshots.Saves != 1 {
		t.Errorf("expected snapshot saved once, got %d", f.snapshots.Saves)
	}
}

func TestEvolveAppliesEveryKind(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft))
	f.llm.Reply = `{
		"summary": "",
		"improvements": [
			{"type": "rule_added", "target_skill_name_en": "refund-handling", "details": {"rule_name": "refund timeline", "conditions": ["refund"], "template": "Hi {{customer_name}}"}},
			{"type": "rule_updated", "target_skill_name_en": "refund-handling", "details": {"rule_name": "refund status", "new_template": "Updated"}},
			{"type": "rule_updated", "target_skill_name_en": "refund-handling", "details": {"rule_name": "missing rule", "new_template": "x"}},
			{"type": "template_improved", "target_skill_name_en": "refund-handling", "details": {"improved_template": "Improved"}},
			{"type": "keyword_added", "target_skill_name_en": "refund-handling", "details": {"keywords": ["Refund"]}},
			{"type": "mystery", "target_skill_name_en": "refund-handling"}
		]
	}`

	result := f.evolve()

	var kinds []string
	for _, c := range result.Changes {
		kinds = append(kinds, string(c.ChangeType))
	}
	if got := strings.Join(kinds, ","); got != "rule_added,rule_updated,template_improved" {
		t.Fatalf("unexpected applied kinds: %s", got)
	}

	stored, _ := f.skills.GetByID(context.Background(), "s1")
	if len(stored.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(stored.Rules))
	}
	if stored.Rules[0].ResponseTemplate != "Improved" {
		t.Errorf("expected first rule template improved, got %q", stored.Rules[0].ResponseTemplate)
	}
	added := stored.Rules[1]
	if added.Priority != domain.DefaultRulePriority || !strings.HasPrefix(added.RuleID, "rule_") {
		t.Errorf("unexpected added rule: %+v", added)
	}
}

func TestEvolveFallsBackToCategorySkills(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft), &domain.Skill{
		ID:              "s9",
		Name:            "Cancellations",
		NameEn:          "cancellations",
		Category:        domain.CategoryRefundCancellation,
		TriggerKeywords: []string{"cancel"},
		IsActive:        true,
	})
	f.llm.Reply = `{"improvements": [{"type": "keyword_added", "target_skill_name_en": "cancellations", "details": {"keywords": ["refund"]}}]}`

	result := f.evolve()

	if result.Status != domain.StatusSkillUpdated || len(result.Changes) != 1 {
		t.Fatalf("expected one change on the category skill, got %+v", result)
	}
	if !strings.Contains(f.llm.Prompts()[0], `"name_en": "cancellations"`) {
		t.Errorf("expected category skill in prompt")
	}
}

func TestEvolveNoRelatedSkills(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft), &domain.Skill{ID: "x", NameEn: "other", Category: "other", TriggerKeywords: []string{"zzz"}, IsActive: true})

	result := f.evolve()
	if result.Status != domain.StatusNoChanges || result.Message != "No related skills found to evolve" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestEvolveAnalysisFailure(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "llm error", err: errors.New("timeout")},
		{name: "not json", reply: "I could not find anything"},
		{name: "empty improvements", reply: `{"summary": "fine", "improvements": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, strPtr(humanDraft))
			f.llm.Reply, f.llm.Err = tt.reply, tt.err

			result := f.evolve()
			if result.Status != domain.StatusNoChanges || result.Message != "No actionable improvements identified" {
				t.Errorf("unexpected result: %+v", result)
			}
		})
	}
}

func TestEvolveFailedImprovementDoesNotAbortOthers(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft),
		&domain.Skill{ID: "s1", Name: "Refund handling", NameEn: "refund-handling", Category: domain.CategoryRefundCancellation, TriggerKeywords: []string{"refund"}, IsActive: true},
		&domain.Skill{ID: "s3", Name: "Returns", NameEn: "returns", Category: domain.CategoryRefundCancellation, TriggerKeywords: []string{"returned"}, IsActive: true},
	)
	// every write to s1 loses the version race
	f.skills.BeforeUpdate = func(id string) {
		if id == "s1" {
			f.skills.Bump(id)
		}
	}
	f.llm.Reply = `{"improvements": [
		{"type": "keyword_added", "target_skill_name_en": "refund-handling", "details": {"keywords": ["lost"]}},
		{"type": "keyword_added", "target_skill_name_en": "returns", "details": {"keywords": ["return label"]}}
	]}`

	result := f.evolve()

	if result.Status != domain.StatusSkillUpdated {
		t.Fatalf("expected skill_updated, got %+v", result)
	}
	if len(result.Changes) != 1 || result.Changes[0].SkillID != "s3" {
		t.Errorf("expected only the s3 change, got %+v", result.Changes)
	}
}

func TestEvolveSnapshotFailureKeepsChanges(t *testing.T) {
	f := newFixture(t, strPtr(humanDraft))
	f.snapshots.SaveErr = errors.New("disk full")
	f.llm.Reply = `{"improvements": [{"type": "keyword_added", "target_skill_name_en": "refund-handling", "details": {"keywords": ["money back"]}}]}`

	result := f.evolve()

	if result.Status != domain.StatusFailed || result.Success {
		t.Fatalf("expected failed run, got %+v", result)
	}
	if len(result.Changes) != 1 {
		t.Errorf("expected applied change reported, got %+v", result.Changes)
	}
	stored, _ := f.skills.GetByID(context.Background(), "s1")
	if !stored.HasKeyword("money back") {
		t.Errorf("expected change kept after snapshot failure")
	}
}
