package domain

// DefaultRulePriority applies to added rules that do not state a priority.
const DefaultRulePriority = 5

// Improvement is a proposed skill delta. The set of implementations is closed:
// KeywordAdded, RuleAdded, RuleUpdated and TemplateImproved.
type Improvement interface {
	Kind() ChangeType
	Target() string
	Summary() string
	improvement()
}

// ImprovementTarget carries the fields shared by every improvement.
type ImprovementTarget struct {
	TargetSkillNameEn string `json:"target_skill_name_en"`
	Description       string `json:"description,omitempty"`
}

func (t ImprovementTarget) Target() string  { return t.TargetSkillNameEn }
func (t ImprovementTarget) Summary() string { return t.Description }
func (ImprovementTarget) improvement()      {}

type KeywordAdded struct {
	ImprovementTarget
	Keywords []string `json:"keywords"`
}

func (KeywordAdded) Kind() ChangeType { return ChangeKeywordAdded }

type RuleAdded struct {
	ImprovementTarget
	RuleName        string   `json:"rule_name"`
	Conditions      []string `json:"conditions"`
	ActionSteps     []string `json:"action_steps"`
	TriggerKeywords []string `json:"trigger_keywords"`
	Template        string   `json:"template"`
	Priority        *int     `json:"priority,omitempty"`
}

func (RuleAdded) Kind() ChangeType { return ChangeRuleAdded }

// PriorityOrDefault returns the stated priority or DefaultRulePriority.
func (r RuleAdded) PriorityOrDefault() int {
	if r.Priority == nil {
		return DefaultRulePriority
	}
	return *r.Priority
}

type RuleUpdated struct {
	ImprovementTarget
	RuleName    string `json:"rule_name"`
	NewTemplate string `json:"new_template"`
}

func (RuleUpdated) Kind() ChangeType { return ChangeRuleUpdated }

type TemplateImproved struct {
	ImprovementTarget
	ImprovedTemplate string `json:"improved_template"`
}

func (TemplateImproved) Kind() ChangeType { return ChangeTemplateImproved }
