package evolution

import (
	"fmt"
	"strings"

	"mailmind_server/core/domain"
	"mailmind_server/core/service/skill"
)

const (
	defaultRuleName   = "Auto-generated Rule"
	templateDetailMax = 200
)

// apply mutates s in place according to imp and returns the change log and
// a short human readable detail. skill.ErrNoChange reports a no-op.
func apply(s *domain.Skill, imp domain.Improvement, replyID string) (*domain.SkillChangeLog, string, error) {
	switch imp := imp.(type) {
	case domain.KeywordAdded:
		return addKeywords(s, imp, replyID)
	case domain.RuleAdded:
		return addRule(s, imp, replyID)
	case domain.RuleUpdated:
		return updateRule(s, imp, replyID)
	case domain.TemplateImproved:
		return improveTemplate(s, imp, replyID)
	}
	return nil, "", fmt.Errorf("unsupported improvement %T", imp)
}

func addKeywords(s *domain.Skill, imp domain.KeywordAdded, replyID string) (*domain.SkillChangeLog, string, error) {
	var added []string
	for _, kw := range imp.Keywords {
		if strings.TrimSpace(kw) == "" || s.HasKeyword(kw) {
			continue
		}
		s.TriggerKeywords = append(s.TriggerKeywords, kw)
		added = append(added, kw)
	}
	if len(added) == 0 {
		return nil, "", skill.ErrNoChange
	}

	log := &domain.SkillChangeLog{
		ChangeType: domain.ChangeKeywordAdded,
		ChangeDetail: map[string]any{
			"added_keywords": added,
			"total_keywords": len(s.TriggerKeywords),
		},
		TriggeredByReplyID: replyID,
	}
	return log, "Added keywords: " + strings.Join(added, ", "), nil
}

func addRule(s *domain.Skill, imp domain.RuleAdded, replyID string) (*domain.SkillChangeLog, string, error) {
	name := imp.RuleName
	if name == "" {
		name = defaultRuleName
	}
	rule := domain.Rule{
		RuleID:           skill.NewRuleID(),
		Name:             name,
		TriggerKeywords:  nonNil(imp.TriggerKeywords),
		Conditions:       nonNil(imp.Conditions),
		ActionSteps:      nonNil(imp.ActionSteps),
		ResponseTemplate: imp.Template,
		Priority:         imp.PriorityOrDefault(),
	}
	s.Rules = append(s.Rules, rule)

	log := &domain.SkillChangeLog{
		ChangeType: domain.ChangeRuleAdded,
		ChangeDetail: map[string]any{
			"rule_id":   rule.RuleID,
			"rule_name": rule.Name,
		},
		TriggeredByReplyID: replyID,
	}
	return log, "Added rule: " + rule.Name, nil
}

func updateRule(s *domain.Skill, imp domain.RuleUpdated, replyID string) (*domain.SkillChangeLog, string, error) {
	if imp.RuleName == "" || imp.NewTemplate == "" {
		return nil, "", skill.ErrNoChange
	}
	rule, ok := s.RuleByName(imp.RuleName)
	if !ok {
		return nil, "", skill.ErrNoChange
	}
	old := rule.ResponseTemplate
	rule.ResponseTemplate = imp.NewTemplate

	log := &domain.SkillChangeLog{
		ChangeType: domain.ChangeRuleUpdated,
		ChangeDetail: map[string]any{
			"rule_name":    imp.RuleName,
			"old_template": clip(old),
			"new_template": clip(imp.NewTemplate),
		},
		TriggeredByReplyID: replyID,
	}
	return log, "Updated rule template: " + imp.RuleName, nil
}

func improveTemplate(s *domain.Skill, imp domain.TemplateImproved, replyID string) (*domain.SkillChangeLog, string, error) {
	if imp.ImprovedTemplate == "" || len(s.Rules) == 0 {
		return nil, "", skill.ErrNoChange
	}
	old := s.Rules[0].ResponseTemplate
	s.Rules[0].ResponseTemplate = imp.ImprovedTemplate

	log := &domain.SkillChangeLog{
		ChangeType: domain.ChangeTemplateImproved,
		ChangeDetail: map[string]any{
			"old_template": clip(old),
			"new_template": clip(imp.ImprovedTemplate),
		},
		TriggeredByReplyID: replyID,
	}
	return log, "Improved primary response template", nil
}

func clip(s string) string {
	runes := []rune(s)
	if len(runes) <= templateDetailMax {
		return s
	}
	return string(runes[:templateDetailMax])
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
