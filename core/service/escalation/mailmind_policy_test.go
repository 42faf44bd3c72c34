package escalation

import (
	"math"
	"strings"
	"testing"

	"mailmind_server/core/domain"
)

func category(s string) *string { return &s }

func TestDecide(t *testing.T) {
	longBody := strings.Repeat("x", 60)

	tests := []struct {
		name       string
		matches    []domain.SkillMatch
		email      domain.Email
		confidence float64
		escalate   bool
		reason     string
	}{
		{
			name:       "no matches and short body floors at zero",
			email:      domain.Email{Body: "short body"},
			confidence: 0,
			escalate:   true,
			reason:     ReasonNoMatches,
		},
		{
			name:       "no matches with bonuses still escalates",
			email:      domain.Email{Body: longBody, IsCustomerService: true, Category: category("other")},
			confidence: 0.2,
			escalate:   true,
			reason:     ReasonNoMatches,
		},
		{
			name:       "strong match",
			matches:    []domain.SkillMatch{{Confidence: 0.8}},
			email:      domain.Email{Body: longBody, IsCustomerService: true, Category: category("other")},
			confidence: 1,
		},
		{
			name:       "weak match escalates with score",
			matches:    []domain.SkillMatch{{Confidence: 0.4}, {Confidence: 0.9}},
			email:      domain.Email{Body: "tiny"},
			confidence: 0.2,
			escalate:   true,
			reason:     "Low confidence score (0.20). Manual review recommended.",
		},
		{
			name:       "only top match counts",
			matches:    []domain.SkillMatch{{Confidence: 0.5}, {Confidence: 0.1}},
			email:      domain.Email{Body: longBody},
			confidence: 0.5,
		},
		{
			name:       "empty category pointer gets no bonus",
			matches:    []domain.SkillMatch{{Confidence: 0.25}},
			email:      domain.Email{Body: longBody, Category: category("")},
			confidence: 0.25,
			escalate:   true,
			reason:     "Low confidence score (0.25). Manual review recommended.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.matches, &tt.email)
			if math.Abs(d.Confidence-tt.confidence) > 1e-9 {
				t.Errorf("expected confidence %v, got %v", tt.confidence, d.Confidence)
			}
			if d.Escalate != tt.escalate {
				t.Errorf("expected escalate %v, got %v", tt.escalate, d.Escalate)
			}
			if d.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, d.Reason)
			}
		})
	}
}

func TestShortBodyCountsRunes(t *testing.T) {
	// 50 runes, more than 50 bytes
	body := strings.Repeat("é", 50)
	d := Decide([]domain.SkillMatch{{Confidence: 0.5}}, &domain.Email{Body: body})
	if math.Abs(d.Confidence-0.5) > 1e-9 {
		t.Errorf("expected no short body penalty, got %v", d.Confidence)
	}
}

func TestAutoSendable(t *testing.T) {
	tests := []struct {
		decision Decision
		expected bool
	}{
		{Decision{Confidence: 0.7}, true},
		{Decision{Confidence: 0.69}, false},
		{Decision{Confidence: 0.1, Escalate: true}, false},
	}

	for _, tt := range tests {
		if got := tt.decision.AutoSendable(); got != tt.expected {
			t.Errorf("confidence %v: expected %v, got %v", tt.decision.Confidence, tt.expected, got)
		}
	}
}
