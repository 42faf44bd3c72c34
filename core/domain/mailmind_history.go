package domain

import "time"

// ChangeType names one kind of skill evolution mutation.
type ChangeType string

const (
	ChangeKeywordAdded     ChangeType = "keyword_added"
	ChangeRuleAdded        ChangeType = "rule_added"
	ChangeRuleUpdated      ChangeType = "rule_updated"
	ChangeTemplateImproved ChangeType = "template_improved"
)

// SkillChangeLog is an append-only audit record of one evolution mutation.
type SkillChangeLog struct {
	ID                 string         `json:"id"`
	SkillID            string         `json:"skill_id"`
	ChangeType         ChangeType     `json:"change_type"`
	ChangeDetail       map[string]any `json:"change_detail"`
	TriggeredByReplyID string         `json:"triggered_by_reply_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ContributionType tells why an email is linked to a skill.
type ContributionType string

const (
	ContributionInitialLearning ContributionType = "initial_learning"
	ContributionEvolutionUpdate ContributionType = "evolution_update"
)

// SkillSourceEmail links an email to a skill it helped create or refine.
// A (skill, email, contribution type) triple is stored at most once.
type SkillSourceEmail struct {
	ID                 string           `json:"id"`
	SkillID            string           `json:"skill_id"`
	EmailID            string           `json:"email_id"`
	ContributionType   ContributionType `json:"contribution_type"`
	ContributionDetail string           `json:"contribution_detail,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`

	// Populated by listings that join the email.
	Email *Email `json:"email,omitempty"`
}
