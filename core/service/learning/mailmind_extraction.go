package learning

import (
	"fmt"
	"strings"

	"mailmind_server/core/agent/llm"
	"mailmind_server/core/domain"
	"mailmind_server/core/port/in"
	"mailmind_server/core/service/skill"

	"github.com/goccy/go-json"
)

const (
	defaultRuleName = "Unnamed Rule"
	bodyLimit       = 1000
)

type extractedRule struct {
	RuleID           string   `json:"rule_id"`
	Name             string   `json:"name"`
	TriggerKeywords  []string `json:"trigger_keywords"`
	Conditions       []string `json:"conditions"`
	ActionSteps      []string `json:"action_steps"`
	ResponseTemplate string   `json:"response_template"`
	Priority         int      `json:"priority"`
}

type extraction struct {
	Name            string          `json:"name"`
	NameEn          string          `json:"name_en"`
	Description     string          `json:"description"`
	TriggerKeywords []string        `json:"trigger_keywords"`
	Rules           []extractedRule `json:"rules"`
	Collaborative   []string        `json:"collaborative_skills"`
}

func parseExtraction(text string) (*extraction, bool) {
	var e extraction
	if !llm.ExtractJSON(text, &e) {
		return nil, false
	}
	return &e, true
}

// request turns the model answer into a create request for category,
// filling the defaults the model left out.
func (e *extraction) request(category string) *in.CreateSkillRequest {
	req := &in.CreateSkillRequest{
		Name:            strings.TrimSpace(e.Name),
		NameEn:          strings.TrimSpace(e.NameEn),
		Category:        category,
		Description:     e.Description,
		TriggerKeywords: orEmpty(e.TriggerKeywords),
		Rules:           make([]domain.Rule, 0, len(e.Rules)),
	}
	if req.Name == "" {
		req.Name = "Skill for " + category
	}
	if req.NameEn == "" {
		req.NameEn = "skill-" + category
	}

	for _, r := range e.Rules {
		rule := domain.Rule{
			RuleID:           r.RuleID,
			Name:             r.Name,
			TriggerKeywords:  orEmpty(r.TriggerKeywords),
			Conditions:       orEmpty(r.Conditions),
			ActionSteps:      orEmpty(r.ActionSteps),
			ResponseTemplate: r.ResponseTemplate,
			Priority:         r.Priority,
		}
		if rule.RuleID == "" {
			rule.RuleID = skill.NewRuleID()
		}
		if rule.Name == "" {
			rule.Name = defaultRuleName
		}
		req.Rules = append(req.Rules, rule)
	}
	return req
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type conversation struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func extractionPrompt(category string, emails []*domain.Email) string {
	conversations := make([]conversation, 0, len(emails))
	for _, e := range emails {
		conversations = append(conversations, conversation{
			From:    e.FromAddress,
			Subject: e.Subject,
			Body:    llm.Truncate(e.Body, bodyLimit),
		})
	}
	examples, _ := json.MarshalIndent(conversations, "", "  ")

	return fmt.Sprintf(`You are analyzing customer service emails to extract skills and response patterns.

Category: %[1]s

Here are %[2]d example emails:

%[3]s

Extract the common patterns and create a skill with rules. Also identify if this skill should collaborate with other skills.

Respond in JSON format:

{
    "name": "Skill Name (Chinese)",
    "name_en": "skill-name-en",
    "category": "%[1]s",
    "description": "Brief description of what this skill handles",
    "trigger_keywords": ["keyword1", "keyword2", "keyword3"],
    "rules": [
        {
            "rule_id": "rule_1",
            "name": "Rule Name",
            "trigger_keywords": ["specific", "triggers"],
            "conditions": ["condition that must be true"],
            "action_steps": ["step1", "step2"],
            "response_template": "Response template with {{customer_name}} placeholder",
            "priority": 10
        }
    ],
    "collaborative_skills": ["skill-name-en-1", "skill-name-en-2"]
}

Guidelines:
1. Extract 2-5 specific rules based on different scenarios in the emails
2. Use {{customer_name}} and {{company_name}} as placeholders in templates
3. Priority: higher number = more specific rule (10-100)
4. Identify skills that might work together (e.g., "refund" often relates to "logistics")

Only return the JSON, nothing else.`, category, len(conversations), examples)
}
