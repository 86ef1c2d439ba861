package sufficiency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/domain"
)

func employmentFacts() []string {
	return []string{
		"I worked for Acme Ltd as a warehouse assistant",
		"My employer is Acme Ltd",
		"They did not pay my final two weeks",
		"The amount owed is £133",
		"I asked my manager Mr Smith twice",
	}
}

func TestScoreSufficientOnlyAtHundred(t *testing.T) {
	p := MustDefault()
	s := &domain.Strategy{
		DisputeType:    "employment",
		KeyFacts:       employmentFacts(),
		DesiredOutcome: "repay my wages in full",
	}
	res := p.Score(s, 0)
	assert.True(t, res.EvidenceRequired)
	assert.Equal(t, 75, res.Total)
	assert.False(t, res.Sufficient)
	assert.Equal(t, []string{ItemEvidence}, res.Missing)

	res = p.Score(s, 1)
	assert.Equal(t, 100, res.Total)
	assert.True(t, res.Sufficient)
	assert.Equal(t, PolicyVersion, res.PolicyVersion)
}

func TestScoreEvidenceNotRequiredForOtherDisputes(t *testing.T) {
	p := MustDefault()
	s := &domain.Strategy{
		DisputeType:    "neighbour noise",
		KeyFacts:       []string{"music every night"},
		DesiredOutcome: "an agreement to keep noise down",
	}
	res := p.Score(s, 0)
	assert.False(t, res.EvidenceRequired)
	assert.True(t, res.Sufficient)
}

func TestScoreNilStrategy(t *testing.T) {
	res := MustDefault().Score(nil, 3)
	assert.Equal(t, 25, res.Total)
	assert.ElementsMatch(t, []string{ItemDisputeType, ItemKeyFacts, ItemOutcome}, res.Missing)
}

func TestForbiddenPhraseDependsOnEvidence(t *testing.T) {
	p := MustDefault()
	resp := "Thanks. I've reviewed the evidence and your claim looks strong."

	v := p.CheckResponse(resp, TurnContext{EvidenceCount: 0})
	assert.False(t, v.Allowed)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, KindForbiddenPhrase, v.Violations[0].Kind)
	assert.Equal(t, "i've reviewed the evidence", v.Violations[0].Match)

	v = p.CheckResponse(resp, TurnContext{EvidenceCount: 1})
	assert.True(t, v.Allowed)
	assert.Empty(t, v.Violations)
}

func TestForbiddenPhraseCaseAndApostrophe(t *testing.T) {
	p := MustDefault()
	v := p.CheckResponse("WE’RE READY TO GENERATE your letter", TurnContext{})
	assert.False(t, v.Allowed)
}

func TestLawyerQuestionOnlyOnceFactsExist(t *testing.T) {
	p := MustDefault()
	resp := "Why do you believe the employer owes you this?"

	v := p.CheckResponse(resp, TurnContext{EvidenceCount: 1, FactCount: 0})
	assert.True(t, v.Allowed)

	v = p.CheckResponse(resp, TurnContext{EvidenceCount: 1, FactCount: 3})
	assert.False(t, v.Allowed)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, KindLawyerQuestion, v.Violations[0].Kind)
	assert.Equal(t, "Why do you believe", v.Violations[0].Match)
}

func TestCustomRulesCompileErrors(t *testing.T) {
	s := DefaultSettings()
	s.LawyerQuestions = []string{"(unclosed"}
	_, err := New(s)
	assert.Error(t, err)
}

func TestExtractCoreFacts(t *testing.T) {
	c := ExtractCoreFacts(employmentFacts())
	assert.Equal(t, CoreFacts{FactCount: 5, Relationship: true, Party: true, Breach: true, Amount: true}, c)

	c = ExtractCoreFacts([]string{"it cost 250 pounds", "the shop refused a refund"})
	assert.True(t, c.Amount)
	assert.True(t, c.Relationship)
	assert.True(t, c.Breach)
	assert.False(t, c.Party)
}

func TestClassify(t *testing.T) {
	p := MustDefault()
	s := &domain.Strategy{KeyFacts: employmentFacts()}

	assert.Equal(t, domain.ChatStateWaitingForEvidence, p.Classify(ClassifyInput{Strategy: s}).State)
	assert.Equal(t, domain.ChatStateReady, p.Classify(ClassifyInput{Strategy: s, EvidenceCount: 2}).State)
	assert.Equal(t, domain.ChatStateBlocked, p.Classify(ClassifyInput{Strategy: s, EvidenceCount: 2, Restricted: true}).State)
	assert.Equal(t, domain.ChatStateBlocked, p.Classify(ClassifyInput{Strategy: s, Locked: true}).State)

	short := &domain.Strategy{KeyFacts: employmentFacts()[:4]}
	assert.Equal(t, domain.ChatStateGathering, p.Classify(ClassifyInput{Strategy: short, EvidenceCount: 2}).State)
	assert.Equal(t, domain.ChatStateGathering, p.Classify(ClassifyInput{}).State)
}
