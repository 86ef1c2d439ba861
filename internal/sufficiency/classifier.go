package sufficiency

import (
	"regexp"

	"disputehub/internal/domain"
	"disputehub/internal/policy"
)

// Core fact names.
const (
	CoreRelationship = "relationship"
	CoreParty        = "party"
	CoreBreach       = "breach"
	CoreAmount       = "amount"
)

type coreFactRule struct {
	name    string
	pattern *regexp.Regexp
}

var coreFactRules = []coreFactRule{
	{CoreRelationship, regexp.MustCompile(`(?i)\b(employer|employee|landlord|tenant|seller|buyer|customer|contractor|client|company|shop|retailer|agency|lender|council)s?\b`)},
	{CoreParty, regexp.MustCompile(`\b[A-Z][a-z]+ (Ltd|Limited|LLP|plc)\b|\b(Mr|Mrs|Ms|Miss|Dr)\.? [A-Z][a-z]+`)},
	{CoreBreach, regexp.MustCompile(`(?i)\b(did not pay|didn't pay|refused|failed to|unpaid|not returned|withheld|faulty|broken|breach|dismissed|owed|never delivered)\b`)},
	{CoreAmount, regexp.MustCompile(`£\s?\d[\d,]*(\.\d{2})?|\b\d[\d,]*(\.\d{2})?\s?(?i:pounds|gbp)\b`)},
}

// CoreFacts is what the classifier found in the recorded key facts.
type CoreFacts struct {
	FactCount    int  `json:"fact_count"`
	Relationship bool `json:"relationship"`
	Party        bool `json:"party"`
	Breach       bool `json:"breach"`
	Amount       bool `json:"amount"`
}

func (c CoreFacts) all() bool {
	return c.Relationship && c.Party && c.Breach && c.Amount
}

// ExtractCoreFacts scans each fact against the core-fact rule table.
func ExtractCoreFacts(keyFacts []string) CoreFacts {
	found := map[string]bool{}
	for _, f := range keyFacts {
		for _, r := range coreFactRules {
			if !found[r.name] && r.pattern.MatchString(f) {
				found[r.name] = true
			}
		}
	}
	return CoreFacts{
		FactCount:    policy.CountNonBlank(keyFacts),
		Relationship: found[CoreRelationship],
		Party:        found[CoreParty],
		Breach:       found[CoreBreach],
		Amount:       found[CoreAmount],
	}
}

// ClassifyInput is the case state the classifier reads.
type ClassifyInput struct {
	Strategy      *domain.Strategy
	EvidenceCount int
	Restricted    bool
	Locked        bool
}

type Classification struct {
	State         string    `json:"state" enum:"GATHERING,WAITING_FOR_EVIDENCE,READY,BLOCKED"`
	CoreFacts     CoreFacts `json:"core_facts"`
	PolicyVersion string    `json:"policy_version"`
}

// Classify derives the chat state. Restricted or locked cases are BLOCKED.
// Otherwise a case with enough facts and every core fact detected is READY
// when evidence exists and WAITING_FOR_EVIDENCE when it does not.
func (p *Policy) Classify(in ClassifyInput) Classification {
	var facts []string
	if in.Strategy != nil {
		facts = in.Strategy.KeyFacts
	}
	core := ExtractCoreFacts(facts)
	c := Classification{CoreFacts: core, PolicyVersion: PolicyVersion}
	switch {
	case in.Restricted || in.Locked:
		c.State = domain.ChatStateBlocked
	case core.FactCount >= p.settings.ClassifierMinKeyFacts && core.all():
		if in.EvidenceCount >= 1 {
			c.State = domain.ChatStateReady
		} else {
			c.State = domain.ChatStateWaitingForEvidence
		}
	default:
		c.State = domain.ChatStateGathering
	}
	return c
}
