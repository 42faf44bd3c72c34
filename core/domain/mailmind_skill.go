package domain

import (
	"strings"
	"time"
)

// Skill is a category-scoped bundle of trigger keywords and rules learned from
// historical emails. NameEn is the natural key used for upserts and snapshots.
type Skill struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	NameEn          string    `json:"name_en" yaml:"name_en"`
	Category        string    `json:"category" yaml:"category"`
	Description     string    `json:"description" yaml:"description"`
	TriggerKeywords []string  `json:"trigger_keywords" yaml:"trigger_keywords"`
	Rules           []Rule    `json:"rules" yaml:"rules"`
	UsageCount      int       `json:"usage_count" yaml:"usage_count"`
	SuccessCount    int       `json:"success_count" yaml:"success_count"`
	IsActive        bool      `json:"is_active" yaml:"is_active"`
	Version         int       `json:"version" yaml:"version"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Rule is embedded in a Skill. All Conditions must occur in the email text
// (case-insensitive) for the rule to match; an empty list always matches.
type Rule struct {
	RuleID           string   `json:"rule_id" yaml:"rule_id"`
	Name             string   `json:"name" yaml:"name"`
	TriggerKeywords  []string `json:"trigger_keywords" yaml:"trigger_keywords"`
	Conditions       []string `json:"conditions" yaml:"conditions"`
	ActionSteps      []string `json:"action_steps" yaml:"action_steps"`
	ResponseTemplate string   `json:"response_template" yaml:"response_template"`
	Priority         int      `json:"priority" yaml:"priority"`
}

// MatchedKeywords returns the trigger keywords contained in lowered, which
// must already be lower-cased.
func (s *Skill) MatchedKeywords(lowered string) []string {
	var matched []string
	for _, kw := range s.TriggerKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// HasKeyword reports whether kw is already a trigger keyword, ignoring case.
func (s *Skill) HasKeyword(kw string) bool {
	for _, existing := range s.TriggerKeywords {
		if strings.EqualFold(existing, kw) {
			return true
		}
	}
	return false
}

// RuleByName returns the first rule with the given name.
func (s *Skill) RuleByName(name string) (*Rule, bool) {
	for i := range s.Rules {
		if s.Rules[i].Name == name {
			return &s.Rules[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s *Skill) Clone() *Skill {
	c := *s
	c.TriggerKeywords = append([]string(nil), s.TriggerKeywords...)
	c.Rules = make([]Rule, len(s.Rules))
	for i, r := range s.Rules {
		c.Rules[i] = r.Clone()
	}
	return &c
}

// Matches reports whether every condition occurs in lowered.
func (r *Rule) Matches(lowered string) bool {
	for _, cond := range r.Conditions {
		if !strings.Contains(lowered, strings.ToLower(cond)) {
			return false
		}
	}
	return true
}

func (r Rule) Clone() Rule {
	r.TriggerKeywords = append([]string(nil), r.TriggerKeywords...)
	r.Conditions = append([]string(nil), r.Conditions...)
	r.ActionSteps = append([]string(nil), r.ActionSteps...)
	return r
}

// SkillMatch is one ranked result of matching an email against the library.
type SkillMatch struct {
	SkillID         string   `json:"skill_id"`
	SkillName       string   `json:"skill_name"`
	SkillNameEn     string   `json:"skill_name_en"`
	Category        string   `json:"category"`
	MatchedKeywords []string `json:"matched_keywords"`
	MatchedRules    []Rule   `json:"matched_rules"`
	KeywordScore    float64  `json:"keyword_score"`
	RuleScore       float64  `json:"rule_score"`
	Confidence      float64  `json:"confidence"`
}

// TopRule returns the highest priority matched rule.
func (m *SkillMatch) TopRule() (*Rule, bool) {
	if m == nil || len(m.MatchedRules) == 0 {
		return nil, false
	}
	return &m.MatchedRules[0], true
}

// SkillSnapshot is the durable export of the whole skill library.
type SkillSnapshot struct {
	Skills     []Skill   `json:"skills" yaml:"skills"`
	Total      int       `json:"total" yaml:"total"`
	ExportedAt time.Time `json:"exported_at,omitempty" yaml:"exported_at,omitempty"`
}

// NewSkillSnapshot builds a snapshot with a consistent total.
func NewSkillSnapshot(skills []*Skill, now time.Time) *SkillSnapshot {
	snap := &SkillSnapshot{Skills: make([]Skill, 0, len(skills)), ExportedAt: now}
	for _, s := range skills {
		snap.Skills = append(snap.Skills, *s)
	}
	snap.Total = len(snap.Skills)
	return snap
}

// SkillFilter selects skills for listing and matching.
type SkillFilter struct {
	ActiveOnly bool
	Category   string
}
