package sufficiency

import (
	"strings"

	"disputehub/internal/domain"
	"disputehub/internal/policy"
)

const pointsPerItem = 25

// Score items.
const (
	ItemDisputeType = "dispute_type"
	ItemKeyFacts    = "key_facts"
	ItemOutcome     = "desired_outcome"
	ItemEvidence    = "evidence"
)

type ScoreItem struct {
	Item    string `json:"item"`
	Points  int    `json:"points"`
	Awarded bool   `json:"awarded"`
}

type ScoreResult struct {
	Total            int         `json:"total"`
	Sufficient       bool        `json:"sufficient"`
	EvidenceRequired bool        `json:"evidence_required"`
	Breakdown        []ScoreItem `json:"breakdown"`
	Missing          []string    `json:"missing"`
	PolicyVersion    string      `json:"policy_version"`
}

// EvidenceRequired reports whether the dispute type names a category for
// which at least one uploaded evidence item is mandatory.
func (p *Policy) EvidenceRequired(disputeType string) bool {
	t := strings.ToLower(disputeType)
	if strings.TrimSpace(t) == "" {
		return false
	}
	for _, kw := range p.settings.EvidenceRequiredKeywords {
		if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Score awards 25 points per satisfied item. Only a total of 100 is sufficient.
func (p *Policy) Score(s *domain.Strategy, evidenceCount int) ScoreResult {
	if s == nil {
		s = &domain.Strategy{}
	}
	required := p.EvidenceRequired(s.DisputeType)
	checks := []struct {
		item string
		ok   bool
	}{
		{ItemDisputeType, strings.TrimSpace(s.DisputeType) != ""},
		{ItemKeyFacts, policy.CountNonBlank(s.KeyFacts) > 0},
		{ItemOutcome, len([]rune(strings.TrimSpace(s.DesiredOutcome))) >= p.settings.MinOutcomeChars},
		{ItemEvidence, !required || evidenceCount >= 1},
	}
	res := ScoreResult{EvidenceRequired: required, Missing: []string{}, PolicyVersion: PolicyVersion}
	for _, c := range checks {
		it := ScoreItem{Item: c.item, Awarded: c.ok}
		if c.ok {
			it.Points = pointsPerItem
			res.Total += pointsPerItem
		} else {
			res.Missing = append(res.Missing, c.item)
		}
		res.Breakdown = append(res.Breakdown, it)
	}
	res.Sufficient = res.Total == 4*pointsPerItem
	return res
}
