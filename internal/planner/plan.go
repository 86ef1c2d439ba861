// Package planner turns a locked strategy into a document plan draft:
// complexity tier, ordered document stubs and routing metadata.
package planner

import (
	"errors"
	"strings"
	"time"

	"disputehub/internal/complexity"
	"disputehub/internal/domain"
	"disputehub/internal/policy"
)

const JurisdictionEnglandWales = "England & Wales"

// ErrNoStrategy is returned when a plan is requested without a strategy.
var ErrNoStrategy = errors.New("strategy required to compute plan")

type route struct {
	forum         string
	prerequisites []string
	timeLimit     string
	limit         func(time.Time) time.Time
}

func days(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(0, 0, n) }
}

func years(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(n, 0, 0) }
}

var routes = map[string]route{
	policy.CategoryEmployment: {
		forum:         "Employment Tribunal",
		prerequisites: []string{"ACAS early conciliation certificate"},
		timeLimit:     "3 months less one day from the act complained of",
		limit:         days(90),
	},
	policy.CategoryLandlord: {
		forum:         "County Court (small claims track)",
		prerequisites: []string{"Letter before action", "Deposit protection scheme dispute service checked"},
		timeLimit:     "6 years",
		limit:         years(6),
	},
	policy.CategoryConsumer: {
		forum:         "County Court (small claims track)",
		prerequisites: []string{"Complaint to trader", "Letter before action"},
		timeLimit:     "6 years",
		limit:         years(6),
	},
	policy.CategoryParking: {
		forum:         "POPLA independent appeals service",
		prerequisites: []string{"Appeal to the parking operator"},
		timeLimit:     "28 days from the rejection notice",
		limit:         days(28),
	},
	policy.CategoryDebt: {
		forum:         "County Court (small claims track)",
		prerequisites: []string{"Letter before action"},
		timeLimit:     "6 years",
		limit:         years(6),
	},
	policy.CategoryContract: {
		forum:         "County Court (small claims track)",
		prerequisites: []string{"Letter before action"},
		timeLimit:     "6 years",
		limit:         years(6),
	},
	policy.CategoryGeneral: {
		forum:         "County Court (small claims track)",
		prerequisites: []string{"Letter before action"},
	},
}

// DocumentStub is a generated document before it has an id.
type DocumentStub struct {
	Type     string
	Title    string
	Position int
	Required bool
}

// Draft is a computed plan ready to persist.
type Draft struct {
	Complexity complexity.Result
	Routing    domain.Routing
	Documents  []DocumentStub
}

type Planner struct {
	Scorer complexity.Scorer
}

func New(scorer complexity.Scorer) Planner {
	return Planner{Scorer: scorer}
}

// Compute scores the strategy and lays out one PENDING stub per recommended document.
func (p Planner) Compute(s *domain.Strategy, evidenceCount int, now time.Time) (Draft, error) {
	if s == nil {
		return Draft{}, ErrNoStrategy
	}
	res := p.Scorer.Score(s, evidenceCount)
	d := Draft{Complexity: res, Routing: Route(res.Category, now)}
	for i, docType := range res.RecommendedDocuments {
		d.Documents = append(d.Documents, DocumentStub{
			Type:     docType,
			Title:    complexity.Title(docType),
			Position: i + 1,
			Required: i < 2,
		})
	}
	return d, nil
}

// Route returns the forum, prerequisites and limitation deadline for a category.
func Route(category string, now time.Time) domain.Routing {
	r, ok := routes[category]
	if !ok {
		r = routes[policy.CategoryGeneral]
	}
	out := domain.Routing{
		Jurisdiction:  JurisdictionEnglandWales,
		Forum:         r.forum,
		Prerequisites: append([]string{}, r.prerequisites...),
		TimeLimit:     r.timeLimit,
	}
	if r.limit != nil {
		deadline := r.limit(now.UTC()).Format(time.RFC3339)
		out.Deadline = &deadline
	}
	return out
}

// Describe is a one-line summary used in timeline descriptions.
func (d Draft) Describe() string {
	types := make([]string, 0, len(d.Documents))
	for _, doc := range d.Documents {
		types = append(types, doc.Type)
	}
	return d.Complexity.Level + " complexity plan: " + strings.Join(types, ", ")
}
