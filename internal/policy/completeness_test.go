package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/domain"
)

func facts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("fact number %d", i+1)
	}
	return out
}

func completeStrategy() *domain.Strategy {
	return &domain.Strategy{
		DisputeType:       "employment",
		KeyFacts:          facts(8),
		DesiredOutcome:    "I want full repayment of £133 in unpaid wages owed to me",
		EvidenceMentioned: []string{"photo of timesheet"},
	}
}

func TestIsCompleteAllRulesSatisfied(t *testing.T) {
	p := DefaultCompleteness()
	assert.True(t, p.IsComplete(completeStrategy()))
	r := p.Evaluate(completeStrategy())
	assert.True(t, r.Complete)
	assert.Empty(t, r.Missing)
	require.Len(t, r.Fields, 4)
}

func TestIsCompleteTooFewFacts(t *testing.T) {
	p := DefaultCompleteness()
	for n := 0; n < DefaultMinKeyFacts; n++ {
		s := completeStrategy()
		s.KeyFacts = facts(n)
		assert.False(t, p.IsComplete(s), "facts=%d", n)
	}
}

func TestBlankFactsDoNotCount(t *testing.T) {
	s := completeStrategy()
	s.KeyFacts = append(facts(7), "   ", "")
	r := DefaultCompleteness().Evaluate(s)
	assert.False(t, r.Complete)
	assert.Equal(t, []string{FieldKeyFacts}, r.Missing)
}

func TestShortOutcomeIsMissing(t *testing.T) {
	s := completeStrategy()
	s.DesiredOutcome = "  pay me back  "
	r := DefaultCompleteness().Evaluate(s)
	assert.False(t, r.Complete)
	assert.Equal(t, []string{FieldDesiredOutcome}, r.Missing)
}

func TestNilStrategyFlagsEverything(t *testing.T) {
	r := DefaultCompleteness().Evaluate(nil)
	assert.False(t, r.Complete)
	assert.Equal(t, []string{FieldDisputeType, FieldKeyFacts, FieldDesiredOutcome, FieldEvidenceMentioned}, r.Missing)
}

func TestMissingEvidenceMention(t *testing.T) {
	s := completeStrategy()
	s.EvidenceMentioned = nil
	assert.False(t, DefaultCompleteness().IsComplete(s))
}

func TestCustomThresholds(t *testing.T) {
	p := CompletenessPolicy{MinKeyFacts: 5, MinOutcomeChars: 10, MinEvidenceMentioned: 1}
	s := completeStrategy()
	s.KeyFacts = facts(5)
	s.DesiredOutcome = "repay £133"
	assert.True(t, p.IsComplete(s))
	assert.False(t, DefaultCompleteness().IsComplete(s))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultCompleteness().Validate())
	assert.Error(t, CompletenessPolicy{MinKeyFacts: 0, MinOutcomeChars: 1, MinEvidenceMentioned: 1}.Validate())
}

func TestCategorize(t *testing.T) {
	cases := map[string]string{
		"employment":                    CategoryEmployment,
		"Unpaid wages":                  CategoryEmployment,
		"Landlord won't return deposit": CategoryLandlord,
		"parking ticket":                CategoryParking,
		"faulty goods":                  CategoryConsumer,
		"personal loan":                 CategoryDebt,
		"building contract":             CategoryContract,
		"":                              CategoryGeneral,
		"neighbour noise":               CategoryGeneral,
	}
	for in, want := range cases {
		assert.Equal(t, want, Categorize(in), in)
	}
}
