package skill

import (
	"sort"
	"strings"

	"mailmind_server/core/domain"
)

const (
	keywordWeight = 0.4
	ruleWeight    = 0.6
)

// Match ranks skills against text. A skill is a candidate when any trigger
// keyword occurs in the text; its matched rules are those whose conditions
// all occur. Results are ordered by confidence, ties keeping input order.
func Match(skills []*domain.Skill, text string) []domain.SkillMatch {
	lowered := strings.ToLower(text)
	matches := make([]domain.SkillMatch, 0)

	for _, s := range skills {
		keywords := s.MatchedKeywords(lowered)
		if len(keywords) == 0 {
			continue
		}

		var rules []domain.Rule
		for i := range s.Rules {
			if s.Rules[i].Matches(lowered) {
				rules = append(rules, s.Rules[i].Clone())
			}
		}
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].Priority > rules[j].Priority
		})

		keywordScore := float64(len(keywords)) / float64(max(len(s.TriggerKeywords), 1))
		ruleScore := 0.0
		if len(s.Rules) > 0 {
			ruleScore = float64(len(rules)) / float64(len(s.Rules))
		}

		matches = append(matches, domain.SkillMatch{
			SkillID:         s.ID,
			SkillName:       s.Name,
			SkillNameEn:     s.NameEn,
			Category:        s.Category,
			MatchedKeywords: keywords,
			MatchedRules:    rules,
			KeywordScore:    keywordScore,
			RuleScore:       ruleScore,
			Confidence:      min(keywordWeight*keywordScore+ruleWeight*ruleScore, 1),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}
