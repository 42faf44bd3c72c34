// Package escalation decides whether a drafted reply may go out or needs a
// human reviewer.
package escalation

import (
	"fmt"
	"unicode/utf8"

	"mailmind_server/core/domain"
)

const (
	serviceBonus   = 0.1
	categoryBonus  = 0.1
	shortBodyCost  = 0.2
	shortBodyRunes = 50

	ReasonNoMatches = "No matching skills found for this email"
)

// Decision is the outcome of Decide.
type Decision struct {
	Confidence float64
	Escalate   bool
	Reason     string
}

// Decide derives the overall confidence from the ranked matches and the
// classified email, and escalates below domain.EscalationThreshold.
func Decide(matches []domain.SkillMatch, email *domain.Email) Decision {
	confidence := 0.0
	if len(matches) > 0 {
		confidence = matches[0].Confidence
	}
	if email.IsCustomerService {
		confidence += serviceBonus
	}
	if email.HasCategory() {
		confidence += categoryBonus
	}
	if utf8.RuneCountInString(email.Body) < shortBodyRunes {
		confidence -= shortBodyCost
	}
	confidence = min(max(confidence, 0), 1)

	d := Decision{Confidence: confidence}
	if confidence < domain.EscalationThreshold {
		d.Escalate = true
		d.Reason = reason(matches, confidence)
	}
	return d
}

// AutoSendable reports whether the confidence clears the auto-send bar.
// It is never an escalation boundary.
func (d Decision) AutoSendable() bool {
	return !d.Escalate && d.Confidence >= domain.HighConfidenceThreshold
}

func reason(matches []domain.SkillMatch, confidence float64) string {
	if len(matches) == 0 {
		return ReasonNoMatches
	}
	return fmt.Sprintf("Low confidence score (%.2f). Manual review recommended.", confidence)
}
