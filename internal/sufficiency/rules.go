package sufficiency

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule kinds.
const (
	KindForbiddenPhrase = "forbidden_phrase"
	KindLawyerQuestion  = "lawyer_question"
)

// Claims of having seen evidence or being ready to proceed. Only checked while
// the case has no uploaded evidence.
var defaultForbiddenPhrases = []string{
	"i've reviewed the evidence",
	"i have reviewed the evidence",
	"having reviewed your evidence",
	"based on the evidence you uploaded",
	"i've looked at your documents",
	"i've seen your evidence",
	"ready to proceed",
	"we're ready to generate",
	"i'll now generate your documents",
	"your documents are being prepared",
}

// Questions asking the user to justify facts they already gave. Only checked
// once at least one fact is recorded.
var defaultLawyerQuestions = []string{
	`why do you (believe|think|feel)`,
	`can you (prove|justify|explain why)`,
	`what (legal )?basis`,
	`on what grounds`,
	`how do you know`,
	`what makes you (think|believe)`,
}

type rule struct {
	kind    string
	phrase  string
	pattern *regexp.Regexp
}

// applies reports whether the rule is active for the turn context.
func (r rule) applies(tc TurnContext) bool {
	switch r.kind {
	case KindForbiddenPhrase:
		return tc.EvidenceCount == 0
	case KindLawyerQuestion:
		return tc.FactCount > 0
	}
	return false
}

func (r rule) match(lowered, original string) (string, bool) {
	if r.pattern != nil {
		m := r.pattern.FindString(original)
		return m, m != ""
	}
	if strings.Contains(lowered, r.phrase) {
		return r.phrase, true
	}
	return "", false
}

func compileRules(forbidden, lawyer []string) ([]rule, error) {
	rules := make([]rule, 0, len(forbidden)+len(lawyer))
	for _, p := range forbidden {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		rules = append(rules, rule{kind: KindForbiddenPhrase, phrase: p})
	}
	for _, expr := range lawyer {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + expr)
		if err != nil {
			return nil, fmt.Errorf("lawyer question %q: %w", expr, err)
		}
		rules = append(rules, rule{kind: KindLawyerQuestion, phrase: expr, pattern: re})
	}
	return rules, nil
}

// TurnContext is the case state a candidate response is judged against.
type TurnContext struct {
	EvidenceCount int
	FactCount     int
}

type Violation struct {
	Kind  string `json:"kind"`
	Rule  string `json:"rule"`
	Match string `json:"match"`
}

// Verdict tells the caller whether the response may be surfaced. A response
// that is not allowed must be regenerated.
type Verdict struct {
	Allowed       bool        `json:"allowed"`
	Violations    []Violation `json:"violations"`
	PolicyVersion string      `json:"policy_version"`
}

// CheckResponse runs every applicable rule against the candidate response.
func (p *Policy) CheckResponse(response string, tc TurnContext) Verdict {
	v := Verdict{Allowed: true, Violations: []Violation{}, PolicyVersion: PolicyVersion}
	lowered := strings.ReplaceAll(strings.ToLower(response), "’", "'")
	for _, r := range p.rules {
		if !r.applies(tc) {
			continue
		}
		if m, ok := r.match(lowered, response); ok {
			v.Violations = append(v.Violations, Violation{Kind: r.kind, Rule: r.phrase, Match: m})
		}
	}
	v.Allowed = len(v.Violations) == 0
	return v
}
