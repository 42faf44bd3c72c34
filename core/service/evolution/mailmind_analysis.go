package evolution

import (
	"fmt"

	"mailmind_server/core/agent/llm"
	"mailmind_server/core/domain"

	"github.com/goccy/go-json"
)

const promptBodyLimit = 1000

// analysis is the model's answer to the diff prompt.
type analysis struct {
	Summary      string            `json:"summary"`
	Improvements []wireImprovement `json:"improvements"`
}

type wireImprovement struct {
	Type              string          `json:"type"`
	TargetSkillNameEn string          `json:"target_skill_name_en"`
	Description       string          `json:"description"`
	Details           json.RawMessage `json:"details"`
}

type relatedSkill struct {
	Name     string   `json:"name"`
	NameEn   string   `json:"name_en"`
	Category string   `json:"category"`
	Rules    []string `json:"rules"`
}

// parseAnalysis decodes the model answer into typed improvements. Entries
// with an unknown type or malformed details are dropped.
func parseAnalysis(text string) (summary string, improvements []domain.Improvement, ok bool) {
	var a analysis
	if !llm.ExtractJSON(text, &a) {
		return "", nil, false
	}
	for _, w := range a.Improvements {
		if imp, ok := w.decode(); ok {
			improvements = append(improvements, imp)
		}
	}
	return a.Summary, improvements, true
}

func (w wireImprovement) decode() (domain.Improvement, bool) {
	target := domain.ImprovementTarget{
		TargetSkillNameEn: w.TargetSkillNameEn,
		Description:       w.Description,
	}
	details := []byte(w.Details)
	if len(details) == 0 || string(details) == "null" {
		details = []byte("{}")
	}

	switch domain.ChangeType(w.Type) {
	case domain.ChangeKeywordAdded:
		imp := domain.KeywordAdded{}
		if json.Unmarshal(details, &imp) != nil {
			return nil, false
		}
		imp.ImprovementTarget = target
		return imp, true
	case domain.ChangeRuleAdded:
		imp := domain.RuleAdded{}
		if json.Unmarshal(details, &imp) != nil {
			return nil, false
		}
		imp.ImprovementTarget = target
		return imp, true
	case domain.ChangeRuleUpdated:
		imp := domain.RuleUpdated{}
		if json.Unmarshal(details, &imp) != nil {
			return nil, false
		}
		imp.ImprovementTarget = target
		return imp, true
	case domain.ChangeTemplateImproved:
		imp := domain.TemplateImproved{}
		if json.Unmarshal(details, &imp) != nil {
			return nil, false
		}
		imp.ImprovementTarget = target
		return imp, true
	}
	return nil, false
}

func analysisPrompt(email *domain.Email, reply *domain.Reply, related []*domain.Skill) string {
	info := make([]relatedSkill, 0, len(related))
	for _, s := range related {
		rules := make([]string, 0, len(s.Rules))
		for _, r := range s.Rules {
			rules = append(rules, r.Name)
		}
		info = append(info, relatedSkill{Name: s.Name, NameEn: s.NameEn, Category: s.Category, Rules: rules})
	}
	skillsJSON, _ := json.MarshalIndent(info, "", "  ")

	return fmt.Sprintf(`Analyze the differences between an AI-generated reply and the human-edited version.
Identify improvements that can be applied to the skill rules.

Original Email:
Subject: %s
Body: %s
Category: %s

AI Draft:
%s

Human Edited Version:
%s

Related Skills:
%s

Analyze the changes and respond in JSON format:
{
    "summary": "Brief summary of what the human changed and why",
    "improvements": [
        {
            "type": "keyword_added" | "rule_added" | "rule_updated" | "template_improved",
            "target_skill_name_en": "skill-name-en",
            "description": "What improvement to make",
            "details": {
                // For keyword_added: {"keywords": ["new", "keywords"]}
                // For rule_added: {"rule_name": "...", "conditions": [...], "action_steps": [...], "trigger_keywords": [...], "template": "...", "priority": 5}
                // For rule_updated: {"rule_name": "...", "new_template": "..."}
                // For template_improved: {"improved_template": "..."}
            }
        }
    ]
}

Guidelines:
1. Only suggest improvements that reflect meaningful pattern changes
2. Use {{customer_name}} and {{company_name}} placeholders in templates
3. If no clear improvements, return empty improvements array
4. Focus on reusable patterns, not one-time fixes

Only return the JSON, nothing else.`,
		email.Subject,
		llm.Truncate(email.Body, promptBodyLimit),
		email.CategoryValue(),
		reply.AIDraft,
		*reply.HumanEdited,
		skillsJSON,
	)
}
