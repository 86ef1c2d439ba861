// Package policy holds the completeness rules that decide when a case strategy
// has gathered enough to be locked for document generation.
package policy

import (
	"fmt"
	"strings"

	"disputehub/internal/domain"
)

// Canonical completeness thresholds.
const (
	DefaultMinKeyFacts          = 8
	DefaultMinOutcomeChars      = 30
	DefaultMinEvidenceMentioned = 1
)

// Field labels reported in Missing.
const (
	FieldDisputeType       = "dispute type"
	FieldKeyFacts          = "key facts"
	FieldDesiredOutcome    = "desired outcome"
	FieldEvidenceMentioned = "evidence mentioned"
)

// CompletenessPolicy is the final-lock gating policy. It is deliberately
// independent from the conversational sufficiency score.
type CompletenessPolicy struct {
	MinKeyFacts          int `yaml:"min_key_facts" json:"min_key_facts"`
	MinOutcomeChars      int `yaml:"min_outcome_chars" json:"min_outcome_chars"`
	MinEvidenceMentioned int `yaml:"min_evidence_mentioned" json:"min_evidence_mentioned"`
}

func DefaultCompleteness() CompletenessPolicy {
	return CompletenessPolicy{
		MinKeyFacts:          DefaultMinKeyFacts,
		MinOutcomeChars:      DefaultMinOutcomeChars,
		MinEvidenceMentioned: DefaultMinEvidenceMentioned,
	}
}

// Validate rejects non-positive thresholds.
func (p CompletenessPolicy) Validate() error {
	if p.MinKeyFacts < 1 {
		return fmt.Errorf("completeness.min_key_facts must be >= 1")
	}
	if p.MinOutcomeChars < 1 {
		return fmt.Errorf("completeness.min_outcome_chars must be >= 1")
	}
	if p.MinEvidenceMentioned < 1 {
		return fmt.Errorf("completeness.min_evidence_mentioned must be >= 1")
	}
	return nil
}

type FieldStatus struct {
	Field    string `json:"field"`
	Present  bool   `json:"present"`
	Have     int    `json:"have"`
	Required int    `json:"required"`
}

// Report is the diagnostic form of IsComplete.
type Report struct {
	Complete bool          `json:"complete"`
	Fields   []FieldStatus `json:"fields"`
	Missing  []string      `json:"missing"`
}

func (p CompletenessPolicy) IsComplete(s *domain.Strategy) bool {
	return p.Evaluate(s).Complete
}

// Evaluate checks every rule and reports per-field status. A nil strategy is
// incomplete with every field missing.
func (p CompletenessPolicy) Evaluate(s *domain.Strategy) Report {
	if s == nil {
		s = &domain.Strategy{}
	}
	typeOK := strings.TrimSpace(s.DisputeType) != ""
	facts := CountNonBlank(s.KeyFacts)
	outcome := len([]rune(strings.TrimSpace(s.DesiredOutcome)))
	evidence := CountNonBlank(s.EvidenceMentioned)

	typeHave := 0
	if typeOK {
		typeHave = 1
	}
	fields := []FieldStatus{
		{Field: FieldDisputeType, Present: typeOK, Have: typeHave, Required: 1},
		{Field: FieldKeyFacts, Present: facts >= p.MinKeyFacts, Have: facts, Required: p.MinKeyFacts},
		{Field: FieldDesiredOutcome, Present: outcome >= p.MinOutcomeChars, Have: outcome, Required: p.MinOutcomeChars},
		{Field: FieldEvidenceMentioned, Present: evidence >= p.MinEvidenceMentioned, Have: evidence, Required: p.MinEvidenceMentioned},
	}
	r := Report{Complete: true, Fields: fields, Missing: []string{}}
	for _, f := range fields {
		if !f.Present {
			r.Complete = false
			r.Missing = append(r.Missing, f.Field)
		}
	}
	return r
}

// CountNonBlank counts entries that are not empty after trimming.
func CountNonBlank(items []string) int {
	n := 0
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			n++
		}
	}
	return n
}
