package complexity

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"disputehub/internal/domain"
)

func strategy(disputeType string, facts int, outcome string) *domain.Strategy {
	s := &domain.Strategy{DisputeType: disputeType, DesiredOutcome: outcome}
	for i := 0; i < facts; i++ {
		s.KeyFacts = append(s.KeyFacts, fmt.Sprintf("fact %d", i))
	}
	return s
}

func TestScoreMonotonicInEvidence(t *testing.T) {
	sc := New(Settings{})
	for _, dt := range []string{"employment", "parking ticket", "faulty goods", ""} {
		s := strategy(dt, 8, "I want full repayment of £133 in unpaid wages owed to me")
		prev := -1
		for _, n := range []int{0, 1, 2, 5, 9, 1 << 20, math.MaxInt/pointsPerEvidence + 1, math.MaxInt} {
			got := sc.Score(s, n).Score
			assert.GreaterOrEqual(t, got, prev, "dispute=%q evidence=%d", dt, n)
			prev = got
		}
	}
}

func TestScoreCapsHugeCounts(t *testing.T) {
	res := New(Settings{}).Score(strategy("employment", 8, ""), math.MaxInt/pointsPerEvidence+1)
	assert.Equal(t, maxEvidencePoints, res.Breakdown.Evidence)
	assert.Equal(t, 30, capped(math.MaxInt/pointsPerFact+1, pointsPerFact, maxFactPoints))
	assert.Equal(t, 0, capped(0, pointsPerFact, maxFactPoints))
}

func TestScoreBreakdownAndTier(t *testing.T) {
	sc := New(Settings{})
	res := sc.Score(strategy("employment", 8, "I want full repayment of £133 in unpaid wages owed to me"), 1)
	want := Breakdown{Facts: 24, Evidence: 5, Category: 20, Outcome: 10}
	if diff := cmp.Diff(want, res.Breakdown); diff != "" {
		t.Fatalf("breakdown mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 59, res.Score)
	assert.Equal(t, LevelMedium, res.Level)
	assert.Equal(t, StructureIntermediate, res.DocumentStructure)
	assert.Equal(t, []string{DocCaseSummary, DocLetterBeforeAction, DocACASEarlyConciliation, DocET1ClaimForm}, res.RecommendedDocuments)
	assert.Equal(t, []string{DocWitnessStatement, DocScheduleOfLoss, DocChronology, DocEvidenceIndex}, res.BlockedDocuments)
}

func TestLowTierTakesOneCategoryDocument(t *testing.T) {
	res := New(Settings{}).Score(strategy("parking", 1, "cancel"), 0)
	assert.Equal(t, LevelLow, res.Level)
	assert.Equal(t, []string{DocCaseSummary, DocParkingAppealLetter}, res.RecommendedDocuments)
	assert.Equal(t, []string{DocPOPLAAppeal, DocEvidenceBundle, DocChronology, DocEvidenceIndex}, res.BlockedDocuments)
}

func TestHighTierGetsExtras(t *testing.T) {
	long := ""
	for len(long) < 210 {
		long += "repayment of deposit "
	}
	res := New(Settings{}).Score(strategy("tenancy deposit", 12, long), 6)
	assert.Equal(t, 30+25+15+25, res.Score)
	assert.Equal(t, LevelHigh, res.Level)
	assert.Equal(t, StructureComprehensive, res.DocumentStructure)
	assert.Equal(t, []string{DocCaseSummary, DocLetterBeforeAction, DocDepositDisputeLetter, DocN1ClaimForm,
		DocWitnessStatement, DocEvidenceBundle, DocChronology, DocEvidenceIndex}, res.RecommendedDocuments)
	assert.Empty(t, res.BlockedDocuments)
}

func TestBoostIsExplicitAndClamped(t *testing.T) {
	s := strategy("employment", 8, "I want full repayment of £133 in unpaid wages owed to me")
	base := New(Settings{}).Score(s, 1)
	boosted := New(Settings{ScoreBoost: 20}).Score(s, 1)
	assert.Equal(t, base.Score+20, boosted.Score)
	assert.Equal(t, LevelHigh, boosted.Level)
	assert.Equal(t, 100, New(Settings{ScoreBoost: 500}).Score(s, 1).Score)
}

func TestNilStrategyDefaults(t *testing.T) {
	res := New(Settings{}).Score(nil, -3)
	assert.Equal(t, Breakdown{Category: 10, Outcome: 5}, res.Breakdown)
	assert.Equal(t, LevelLow, res.Level)
	assert.Equal(t, "general", res.Category)
	assert.Equal(t, []string{DocCaseSummary, DocLetterBeforeAction}, res.RecommendedDocuments)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Letter Before Action", Title(DocLetterBeforeAction))
	assert.Equal(t, "SOMETHING NEW", Title("SOMETHING_NEW"))
}
