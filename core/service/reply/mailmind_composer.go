// Package reply drafts replies from matched skills and manages their
// review and delivery.
package reply

import (
	"context"
	"fmt"
	"strings"

	"mailmind_server/core/agent/llm"
	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/rs/zerolog"
)

const (
	DefaultCompanyLabel = "We"

	promptBodyLimit = 1500
)

// Composer turns a match into reply text. It never persists anything.
type Composer struct {
	llm     out.LLMClient
	company string
	log     zerolog.Logger
}

// NewComposer creates a composer. llm may be nil, in which case replies
// without a template use the generic fallback.
func NewComposer(client out.LLMClient, companyLabel string, log zerolog.Logger) *Composer {
	if companyLabel == "" {
		companyLabel = DefaultCompanyLabel
	}
	return &Composer{
		llm:     client,
		company: companyLabel,
		log:     log.With().Str("component", "reply_composer").Logger(),
	}
}

// Compose drafts a reply. Without a match, or when confidence is below the
// escalation threshold, the escalation acknowledgment is returned. Otherwise
// the top rule's template is filled in, and the LLM writes the reply only
// when that rule has no template.
func (c *Composer) Compose(ctx context.Context, email *domain.Email, best *domain.SkillMatch, confidence float64) string {
	if best == nil || confidence < domain.EscalationThreshold {
		return EscalationDraft(email)
	}

	if rule, ok := best.TopRule(); ok && rule.ResponseTemplate != "" {
		return FillTemplate(rule.ResponseTemplate, email.CustomerName(), c.company)
	}

	return c.generate(ctx, email, best)
}

func (c *Composer) generate(ctx context.Context, email *domain.Email, best *domain.SkillMatch) string {
	if c.llm == nil {
		return FallbackDraft(email)
	}

	text, err := c.llm.Complete(ctx, generationPrompt(email, best))
	if err != nil {
		c.log.Warn().Err(err).Str("email_id", email.ID).Str("skill", best.SkillNameEn).Msg("reply generation failed, using fallback")
		return FallbackDraft(email)
	}
	return strings.TrimSpace(text)
}

// FillTemplate substitutes all four placeholder spellings.
func FillTemplate(template, customer, company string) string {
	return strings.NewReplacer(
		"{{customer_name}}", customer,
		"{customer_name}", customer,
		"{{company_name}}", company,
		"{company_name}", company,
	).Replace(template)
}

// EscalationDraft acknowledges the email and promises a human follow-up.
func EscalationDraft(email *domain.Email) string {
	return fmt.Sprintf(`Dear %s,

Thank you for your email regarding "%s".

We have received your inquiry and a member of our team will review it personally and get back to you shortly.

Best regards,
Customer Support Team`, email.CustomerName(), email.Subject)
}

// FallbackDraft is used when reply generation fails.
func FallbackDraft(email *domain.Email) string {
	return fmt.Sprintf(`Dear %s,

Thank you for your inquiry regarding "%s".

We have reviewed your request and are working on resolving it. Our team will get back to you with more details shortly.

Best regards,
Customer Support Team`, email.CustomerName(), email.Subject)
}

func generationPrompt(email *domain.Email, best *domain.SkillMatch) string {
	var rules strings.Builder
	for _, r := range best.MatchedRules {
		template := r.ResponseTemplate
		if template == "" {
			template = "No template"
		}
		fmt.Fprintf(&rules, "- %s: %s\n", r.Name, template)
	}

	return fmt.Sprintf(`Generate a professional email reply based on the following:

Customer Email:
From: %s (%s)
Subject: %s
Content: %s

Matched Skill: %s
Category: %s

Relevant Rules:
%s
Generate a helpful, professional reply. Keep it concise and friendly.
Address the customer as "%s".
Only return the email content, no explanation.`,
		email.CustomerName(), email.FromAddress,
		email.Subject,
		llm.Truncate(email.Body, promptBodyLimit),
		best.SkillName,
		best.Category,
		rules.String(),
		email.CustomerName(),
	)
}
