// Package complexity maps a strategy and its evidence count to a complexity
// tier and the set of documents recommended for that tier.
package complexity

import (
	"strings"

	"disputehub/internal/domain"
	"disputehub/internal/policy"
)

// Tiers.
const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

// Document structures, one per tier.
const (
	StructureBasic         = "BASIC"
	StructureIntermediate  = "INTERMEDIATE"
	StructureComprehensive = "COMPREHENSIVE"
)

// Document types.
const (
	DocCaseSummary           = "CASE_SUMMARY"
	DocLetterBeforeAction    = "LETTER_BEFORE_ACTION"
	DocACASEarlyConciliation = "ACAS_EARLY_CONCILIATION"
	DocET1ClaimForm          = "ET1_CLAIM_FORM"
	DocWitnessStatement      = "WITNESS_STATEMENT"
	DocScheduleOfLoss        = "SCHEDULE_OF_LOSS"
	DocDepositDisputeLetter  = "DEPOSIT_DISPUTE_LETTER"
	DocN1ClaimForm           = "N1_CLAIM_FORM"
	DocEvidenceBundle        = "EVIDENCE_BUNDLE"
	DocComplaintLetter       = "COMPLAINT_LETTER"
	DocParkingAppealLetter   = "PARKING_APPEAL_LETTER"
	DocPOPLAAppeal           = "POPLA_APPEAL"
	DocStatementOfAccount    = "STATEMENT_OF_ACCOUNT"
	DocEvidenceSummary       = "EVIDENCE_SUMMARY"
	DocChronology            = "CHRONOLOGY"
	DocEvidenceIndex         = "EVIDENCE_INDEX"
	DocFollowUpLetter        = "FOLLOW_UP_LETTER"
)

const (
	maxFactPoints     = 30
	maxEvidencePoints = 25
	pointsPerFact     = 3
	pointsPerEvidence = 5
	highThreshold     = 70
	mediumThreshold   = 40
	mediumSlice       = 3
)

var categoryPoints = map[string]int{
	policy.CategoryEmployment: 20,
	policy.CategoryLandlord:   15,
	policy.CategoryContract:   15,
	policy.CategoryConsumer:   10,
	policy.CategoryDebt:       10,
	policy.CategoryParking:    5,
	policy.CategoryGeneral:    10,
}

// Category-specific documents, most important first. Tiers take prefixes of these lists.
var categoryDocuments = map[string][]string{
	policy.CategoryEmployment: {DocLetterBeforeAction, DocACASEarlyConciliation, DocET1ClaimForm, DocWitnessStatement, DocScheduleOfLoss},
	policy.CategoryLandlord:   {DocLetterBeforeAction, DocDepositDisputeLetter, DocN1ClaimForm, DocWitnessStatement, DocEvidenceBundle},
	policy.CategoryConsumer:   {DocComplaintLetter, DocLetterBeforeAction, DocN1ClaimForm, DocEvidenceBundle},
	policy.CategoryParking:    {DocParkingAppealLetter, DocPOPLAAppeal, DocEvidenceBundle},
	policy.CategoryDebt:       {DocLetterBeforeAction, DocN1ClaimForm, DocStatementOfAccount},
	policy.CategoryContract:   {DocLetterBeforeAction, DocN1ClaimForm, DocWitnessStatement, DocEvidenceBundle},
	policy.CategoryGeneral:    {DocLetterBeforeAction, DocEvidenceSummary},
}

var (
	baseDocuments  = []string{DocCaseSummary}
	extraDocuments = []string{DocChronology, DocEvidenceIndex}
)

var documentTitles = map[string]string{
	DocCaseSummary:           "Case Summary",
	DocLetterBeforeAction:    "Letter Before Action",
	DocACASEarlyConciliation: "ACAS Early Conciliation Notification",
	DocET1ClaimForm:          "ET1 Employment Tribunal Claim",
	DocWitnessStatement:      "Witness Statement",
	DocScheduleOfLoss:        "Schedule of Loss",
	DocDepositDisputeLetter:  "Deposit Dispute Letter",
	DocN1ClaimForm:           "N1 County Court Claim",
	DocEvidenceBundle:        "Evidence Bundle",
	DocComplaintLetter:       "Formal Complaint Letter",
	DocParkingAppealLetter:   "Parking Charge Appeal",
	DocPOPLAAppeal:           "POPLA Appeal",
	DocStatementOfAccount:    "Statement of Account",
	DocEvidenceSummary:       "Evidence Summary",
	DocChronology:            "Chronology of Events",
	DocEvidenceIndex:         "Evidence Index",
	DocFollowUpLetter:        "Follow-up Letter",
}

// Title returns a human title for a document type.
func Title(docType string) string {
	if t, ok := documentTitles[docType]; ok {
		return t
	}
	return strings.ReplaceAll(docType, "_", " ")
}

// Settings is the complexity section of the policy file.
type Settings struct {
	// ScoreBoost is added before clamping. Non-zero only in test deployments.
	ScoreBoost int `yaml:"score_boost" json:"score_boost"`
}

type Breakdown struct {
	Facts    int `json:"facts"`
	Evidence int `json:"evidence"`
	Category int `json:"category"`
	Outcome  int `json:"outcome"`
	Boost    int `json:"boost"`
}

type Result struct {
	Level                string    `json:"level" enum:"LOW,MEDIUM,HIGH"`
	Score                int       `json:"score" minimum:"0" maximum:"100"`
	Category             string    `json:"category"`
	Breakdown            Breakdown `json:"breakdown"`
	DocumentStructure    string    `json:"document_structure" enum:"BASIC,INTERMEDIATE,COMPREHENSIVE"`
	RecommendedDocuments []string  `json:"recommended_documents"`
	BlockedDocuments     []string  `json:"blocked_documents"`
}

type Scorer struct {
	Settings Settings
}

func New(s Settings) Scorer { return Scorer{Settings: s} }

// Score never fails. A nil strategy scores as empty.
func (sc Scorer) Score(s *domain.Strategy, evidenceCount int) Result {
	if s == nil {
		s = &domain.Strategy{}
	}
	if evidenceCount < 0 {
		evidenceCount = 0
	}
	category := policy.Categorize(s.DisputeType)
	b := Breakdown{
		Facts:    capped(policy.CountNonBlank(s.KeyFacts), pointsPerFact, maxFactPoints),
		Evidence: capped(evidenceCount, pointsPerEvidence, maxEvidencePoints),
		Category: categoryPoints[category],
		Outcome:  outcomePoints(len([]rune(strings.TrimSpace(s.DesiredOutcome)))),
		Boost:    sc.Settings.ScoreBoost,
	}
	total := b.Facts + b.Evidence + b.Category + b.Outcome + b.Boost
	total = max(0, min(total, 100))

	res := Result{Score: total, Category: category, Breakdown: b}
	switch {
	case total >= highThreshold:
		res.Level, res.DocumentStructure = LevelHigh, StructureComprehensive
	case total >= mediumThreshold:
		res.Level, res.DocumentStructure = LevelMedium, StructureIntermediate
	default:
		res.Level, res.DocumentStructure = LevelLow, StructureBasic
	}
	res.RecommendedDocuments, res.BlockedDocuments = documentsFor(category, res.Level)
	return res
}

// capped scales n by per without overflowing past limit.
func capped(n, per, limit int) int {
	if n > limit/per {
		return limit
	}
	return min(n*per, limit)
}

func outcomePoints(chars int) int {
	switch {
	case chars >= 200:
		return 25
	case chars >= 100:
		return 15
	case chars >= 30:
		return 10
	default:
		return 5
	}
}

func documentsFor(category, level string) (recommended, blocked []string) {
	list := categoryDocuments[category]
	var take []string
	switch level {
	case LevelHigh:
		take = append(append([]string{}, list...), extraDocuments...)
	case LevelMedium:
		take = list[:min(mediumSlice, len(list))]
	default:
		take = list[:min(1, len(list))]
	}
	recommended = append(append([]string{}, baseDocuments...), take...)
	included := map[string]bool{}
	for _, d := range recommended {
		included[d] = true
	}
	blocked = []string{}
	for _, d := range append(append([]string{}, list...), extraDocuments...) {
		if !included[d] {
			blocked = append(blocked, d)
		}
	}
	return recommended, blocked
}
