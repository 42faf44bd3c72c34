package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/service/skill"
	"mailmind_server/internal/memstore"

	"github.com/rs/zerolog"
)

const refundAnswer = "```json\n" + `{
  "name": "Refund handling",
  "name_en": "refund-handling",
  "description": "Refund requests",
  "trigger_keywords": ["refund", "money back"],
  "rules": [
    {"rule_id": "rule_1", "name": "refund status", "conditions": ["refund"], "response_template": "Dear {{customer_name}}", "priority": 20},
    {"conditions": ["cancel"]}
  ],
  "collaborative_skills": ["logistics-tracking"]
}` + "\n```"

type fixture struct {
	agent     *Agent
	skills    *memstore.Skills
	snapshots *memstore.Snapshots
	graph     *memstore.Graph
	llm       *memstore.LLM
}

func strPtr(s string) *string { return &s }

func newFixture(emails []*domain.Email, skills ...*domain.Skill) *fixture {
	f := &fixture{
		skills:    memstore.NewSkills(skills...),
		snapshots: &memstore.Snapshots{},
		graph:     memstore.NewGraph(),
		llm:       &memstore.LLM{Reply: refundAnswer},
	}
	svc := skill.NewService(f.skills, f.skills, f.snapshots, f.graph, zerolog.Nop())
	f.agent = NewAgent(memstore.NewEmails(emails...), svc, f.llm, 0, zerolog.Nop())
	return f
}

func csEmail(id, category string, age time.Duration) *domain.Email {
	e := &domain.Email{
		ID:                id,
		FromAddress:       id + "@example.com",
		Subject:           "Subject " + id,
		Body:              "Body of " + id,
		IsCustomerService: true,
		ReceivedAt:        time.Now().Add(-age),
	}
	if category != "" {
		e.Category = strPtr(category)
	}
	return e
}

func TestLearnCreatesSkillPerCategory(t *testing.T) {
	emails := []*domain.Email{
		csEmail("e1", domain.CategoryRefundCancellation, time.Hour),
		csEmail("e2", domain.CategoryRefundCancellation, 2*time.Hour),
		{ID: "e3", Subject: "newsletter", ReceivedAt: time.Now()},
	}
	f := newFixture(emails)

	var messages []string
	result := f.agent.Learn(context.Background(), &in.LearnRequest{
		OnProgress: func(_, _ int, msg string) { messages = append(messages, msg) },
	})

	if !result.Success || result.Status != domain.StatusCompleted {
		t.Fatalf("expected completed run, got %q %v", result.Status, result.Errors)
	}
	if result.EmailsProcessed != 2 || result.CategoriesProcessed != 1 {
		t.Errorf("expected 2 emails in 1 category, got %d/%d", result.EmailsProcessed, result.CategoriesProcessed)
	}
	if result.SkillsCreated != 1 || result.SkillsUpdated != 0 {
		t.Errorf("expected 1 created 0 updated, got %d/%d", result.SkillsCreated, result.SkillsUpdated)
	}
	if len(result.CollaborativeSkills) != 1 || result.CollaborativeSkills[0] != "logistics-tracking" {
		t.Errorf("unexpected collaborative skills %v", result.CollaborativeSkills)
	}

	created, err := f.skills.GetByNameEn(context.Background(), "refund-handling")
	if err != nil {
		t.Fatalf("expected skill to be stored: %v", err)
	}
	if created.Category != domain.CategoryRefundCancellation {
		t.Errorf("expected category from the group, got %q", created.Category)
	}
	if len(created.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(created.Rules))
	}
	second := created.Rules[1]
	if second.Name != defaultRuleName || !strings.HasPrefix(second.RuleID, "rule_") || second.Priority != 0 {
		t.Errorf("expected rule defaults, got %+v", second)
	}

	sources := f.skills.Sources()
	if len(sources) != 2 {
		t.Fatalf("expected 2 source links, got %d", len(sources))
	}
	for _, src := range sources {
		if src.ContributionType != domain.ContributionInitialLearning {
			t.Errorf("expected initial_learning, got %q", src.ContributionType)
		}
		expected := "Used for learning category: " + domain.CategoryRefundCancellation
		if src.ContributionDetail != expected {
			t.Errorf("expected %q, got %q", expected, src.ContributionDetail)
		}
	}

	collaborators, _ := f.graph.Collaborators(context.Background(), "refund-handling")
	if len(collaborators) != 1 || collaborators[0] != "logistics-tracking" {
		t.Errorf("expected graph collaboration, got %v", collaborators)
	}
	if f.snapshots.Saves != 1 {
		t.Errorf("expected one snapshot save, got %d", f.snapshots.Saves)
	}
	if messages[len(messages)-1] != "Learning complete!" {
		t.Errorf("expected final progress message, got %q", messages[len(messages)-1])
	}
}

func TestLearnNoEmails(t *testing.T) {
	f := newFixture(nil)

	result := f.agent.Learn(context.Background(), &in.LearnRequest{})

	if !result.Success || result.Status != domain.StatusCompleted {
		t.Fatalf("expected completed run, got %q", result.Status)
	}
	if result.Message != "No customer service emails found" {
		t.Errorf("unexpected message %q", result.Message)
	}
	if len(f.llm.Prompts()) != 0 || f.snapshots.Saves != 0 {
		t.Error("expected no extraction and no snapshot")
	}
}

func TestLearnExistingSkill(t *testing.T) {
	existing := &domain.Skill{
		ID:              "s1",
		Name:            "Old refunds",
		NameEn:          "refund-handling",
		Category:        domain.CategoryRefundCancellation,
		TriggerKeywords: []string{"old"},
		UsageCount:      7,
		IsActive:        true,
	}

	tests := []struct {
		name         string
		force        bool
		expectedName string
	}{
		{name: "kept without force", force: false, expectedName: "Old refunds"},
		{name: "replaced with force", force: true, expectedName: "Refund handling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture([]*domain.Email{csEmail("e1", domain.CategoryRefundCancellation, time.Hour)}, existing)

			result := f.agent.Learn(context.Background(), &in.LearnRequest{Force: tt.force})

			if result.SkillsCreated != 0 || result.SkillsUpdated != 1 {
				t.Errorf("expected 0 created 1 updated, got %d/%d", result.SkillsCreated, result.SkillsUpdated)
			}
			stored, _ := f.skills.GetByID(context.Background(), "s1")
			if stored.Name != tt.expectedName {
				t.Errorf("expected name %q, got %q", tt.expectedName, stored.Name)
			}
			if stored.UsageCount != 7 {
				t.Errorf("expected usage counters kept, got %d", stored.UsageCount)
			}
			if len(f.skills.Sources()) != 1 || f.skills.Sources()[0].SkillID != "s1" {
				t.Errorf("expected source linked to the existing skill, got %+v", f.skills.Sources())
			}
		})
	}
}

func TestLearnSkipsFailedCategories(t *testing.T) {
	emails := []*domain.Email{
		csEmail("e1", domain.CategoryRefundCancellation, time.Hour),
		csEmail("e2", domain.CategoryLogisticsIssue, 2*time.Hour),
		csEmail("e3", "", 3*time.Hour),
	}
	f := newFixture(emails)
	f.llm.Respond = func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Category: "+domain.CategoryRefundCancellation):
			return refundAnswer, nil
		case strings.Contains(prompt, "Category: "+domain.CategoryLogisticsIssue):
			return "", errors.New("upstream down")
		default:
			return "I cannot help with that", nil
		}
	}

	result := f.agent.Learn(context.Background(), &in.LearnRequest{})

	if !result.Success {
		t.Fatalf("expected success, got %v", result.Errors)
	}
	if result.CategoriesProcessed != 3 || result.SkillsCreated != 1 {
		t.Errorf("expected 3 categories and 1 created skill, got %d/%d", result.CategoriesProcessed, result.SkillsCreated)
	}
	if len(f.llm.Prompts()) != 3 {
		t.Errorf("expected one prompt per category, got %d", len(f.llm.Prompts()))
	}
	if !strings.Contains(f.llm.Prompts()[2], "Category: "+domain.CategoryOther) {
		t.Error("expected uncategorized emails grouped as other")
	}
}

func TestLearnCategoryFilterAndLimits(t *testing.T) {
	var emails []*domain.Email
	for i := 0; i < 25; i++ {
		emails = append(emails, csEmail(fmt.Sprintf("r%02d", i), domain.CategoryRefundCancellation, time.Duration(i)*time.Minute))
	}
	emails = append(emails, csEmail("l1", domain.CategoryLogisticsIssue, time.Second))
	f := newFixture(emails)

	result := f.agent.Learn(context.Background(), &in.LearnRequest{
		EmailCount: 30,
		Categories: []string{domain.CategoryRefundCancellation},
	})

	if result.EmailsProcessed != 26 || result.CategoriesProcessed != 1 {
		t.Errorf("expected 26 emails in 1 category, got %d/%d", result.EmailsProcessed, result.CategoriesProcessed)
	}
	prompts := f.llm.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "Here are 20 example emails") {
		t.Error("expected the sample to be capped at 20 emails")
	}
	if len(f.skills.Sources()) != emailsPerCategory {
		t.Errorf("expected %d source links, got %d", emailsPerCategory, len(f.skills.Sources()))
	}
}

func TestLearnSnapshotFailure(t *testing.T) {
	f := newFixture([]*domain.Email{csEmail("e1", domain.CategoryRefundCancellation, time.Hour)})
	f.snapshots.SaveErr = errors.New("disk full")

	result := f.agent.Learn(context.Background(), &in.LearnRequest{})

	if result.Success || result.Status != domain.StatusFailed {
		t.Fatalf("expected failed run, got %q", result.Status)
	}
	if _, err := f.skills.GetByNameEn(context.Background(), "refund-handling"); err != nil {
		t.Errorf("expected created skill to remain stored: %v", err)
	}
}

func TestExtractionPromptTruncatesBodies(t *testing.T) {
	email := csEmail("e1", domain.CategoryOther, 0)
	email.Body = strings.Repeat("b", bodyLimit+50)

	prompt := extractionPrompt(domain.CategoryOther, []*domain.Email{email})

	if strings.Contains(prompt, strings.Repeat("b", bodyLimit+1)) {
		t.Error("expected body truncated")
	}
	if !strings.Contains(prompt, strings.Repeat("b", bodyLimit)) {
		t.Error("expected body prefix kept")
	}
	if !strings.Contains(prompt, `"category": "other"`) {
		t.Error("expected category in the response schema")
	}
}
