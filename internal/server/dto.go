package server

import (
	"disputehub/internal/domain"
	"disputehub/internal/engine"
)

// Request payloads

type CreateCaseRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	UserID      *string `json:"user_id,omitempty" doc:"Owner of the case. Admins only; defaults to the caller."`
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
}

type CloseCaseRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SetRestrictedRequest struct {
	Restricted bool `json:"restricted"`
}

type TurnRequest struct {
	Delta    *domain.StrategyDelta `json:"delta,omitempty"`
	Response string                `json:"response,omitempty"`
}

type AddEvidenceRequest struct {
	FileRef      string  `json:"file_ref"`
	FileType     string  `json:"file_type,omitempty"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	EvidenceDate *string `json:"evidence_date,omitempty" doc:"YYYY-MM-DD"`
}

type UpdateEvidenceRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	EvidenceDate *string `json:"evidence_date,omitempty" doc:"YYYY-MM-DD"`
}

type ScoreRequest struct {
	DisputeType    string   `json:"dispute_type,omitempty"`
	KeyFacts       []string `json:"key_facts,omitempty"`
	DesiredOutcome string   `json:"desired_outcome,omitempty"`
	EvidenceCount  int      `json:"evidence_count,omitempty" minimum:"0" maximum:"10000"`
}

// Responses

type TriggerResponse struct {
	CaseID string `json:"case_id"`
	engine.TriggerCheck
}

type listCases struct {
	Items []domain.Case `json:"items"`
}

type listEvidence struct {
	Items []domain.EvidenceItem `json:"items"`
}

type listDocuments struct {
	Items []domain.GeneratedDocument `json:"items"`
}

type paginatedTimeline struct {
	Items      []domain.TimelineEvent `json:"items"`
	NextCursor int64                  `json:"next_cursor,omitempty" doc:"Pass as after= to continue"`
}

type listNotifications struct {
	Items []domain.Notification `json:"items"`
}

// Conversion helpers

func strategyResponse(s domain.Strategy) domain.Strategy {
	s.KeyFacts = nonNilSlice(s.KeyFacts)
	s.EvidenceMentioned = nonNilSlice(s.EvidenceMentioned)
	return s
}

func planResponse(p domain.DocumentPlan, docs []domain.GeneratedDocument) domain.DocumentPlan {
	p.AllowedTypes = nonNilSlice(p.AllowedTypes)
	p.BlockedTypes = nonNilSlice(p.BlockedTypes)
	p.Routing.Prerequisites = nonNilSlice(p.Routing.Prerequisites)
	p.Documents = nonNilSlice(docs)
	return p
}

func timelinePage(events []domain.TimelineEvent, limit int) paginatedTimeline {
	page := paginatedTimeline{Items: nonNilSlice(events)}
	if limit > 0 && len(events) == limit {
		page.NextCursor = events[len(events)-1].ID
	}
	return page
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
