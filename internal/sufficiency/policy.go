// Package sufficiency polices individual conversation turns: a points-based
// sufficiency score, a rule table over the agent's candidate response, and a
// chat-state classifier built on its own core-fact heuristics.
//
// These checks are versioned separately from the final-lock completeness
// policy and are never derived from it.
package sufficiency

import (
	"fmt"
)

// PolicyVersion identifies the rule set reported with every score and verdict.
const PolicyVersion = "sufficiency/v1"

// Settings is the tunable part of the policy as it appears in the policy file.
type Settings struct {
	MinOutcomeChars          int      `yaml:"min_outcome_chars" json:"min_outcome_chars"`
	EvidenceRequiredKeywords []string `yaml:"evidence_required_keywords" json:"evidence_required_keywords"`
	ForbiddenPhrases         []string `yaml:"forbidden_phrases" json:"forbidden_phrases"`
	LawyerQuestions          []string `yaml:"lawyer_questions" json:"lawyer_questions"`
	ClassifierMinKeyFacts    int      `yaml:"classifier_min_key_facts" json:"classifier_min_key_facts"`
}

func DefaultSettings() Settings {
	return Settings{
		MinOutcomeChars: 15,
		EvidenceRequiredKeywords: []string{
			"employment", "landlord", "consumer", "parking", "debt", "contract",
			"payment", "unpaid", "wage", "salary", "deposit", "refund", "invoice", "owed",
		},
		ForbiddenPhrases:      append([]string(nil), defaultForbiddenPhrases...),
		LawyerQuestions:       append([]string(nil), defaultLawyerQuestions...),
		ClassifierMinKeyFacts: 5,
	}
}

func (s Settings) Validate() error {
	if s.MinOutcomeChars < 1 {
		return fmt.Errorf("sufficiency.min_outcome_chars must be >= 1")
	}
	if s.ClassifierMinKeyFacts < 1 {
		return fmt.Errorf("sufficiency.classifier_min_key_facts must be >= 1")
	}
	_, err := compileRules(s.ForbiddenPhrases, s.LawyerQuestions)
	return err
}

// Policy is a compiled Settings value. It is safe for concurrent use.
type Policy struct {
	settings Settings
	rules    []rule
}

func New(s Settings) (*Policy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	rules, err := compileRules(s.ForbiddenPhrases, s.LawyerQuestions)
	if err != nil {
		return nil, err
	}
	return &Policy{settings: s, rules: rules}, nil
}

// MustDefault compiles DefaultSettings and panics if the built-in tables are invalid.
func MustDefault() *Policy {
	p, err := New(DefaultSettings())
	if err != nil {
		panic(err)
	}
	return p
}

