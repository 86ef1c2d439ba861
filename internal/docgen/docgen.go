// Package docgen drafts case documents and stores the result. A Service pairs
// a Drafter (template, OpenAI or Anthropic) with a Store (local or GCS).
package docgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"disputehub/internal/domain"
	"disputehub/internal/metrics"
)

// Request describes one document to produce.
type Request struct {
	DocumentID string
	Type       string
	Title      string
	CaseID     string
	Strategy   domain.Strategy
	Routing    domain.Routing
	Evidence   []domain.EvidenceItem
	Position   int
	Total      int
}

type Output struct {
	FileRef string
	Content string
}

// Generator is what the engine calls. Errors mark the document FAILED.
type Generator interface {
	Generate(ctx context.Context, req Request) (Output, error)
}

type Drafter interface {
	Name() string
	Draft(ctx context.Context, req Request) (string, error)
}

// Store persists drafted text and returns a reference to it.
type Store interface {
	Put(ctx context.Context, key string, content []byte) (string, error)
}

var ErrEmptyDraft = errors.New("drafter returned no content")

type Service struct {
	Drafter Drafter
	Store   Store
	Metrics *metrics.Recorder
	Logger  *zap.Logger
}

func (s Service) Generate(ctx context.Context, req Request) (Output, error) {
	if s.Drafter == nil || s.Store == nil {
		return Output{}, errors.New("docgen: drafter and store required")
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("case_id", req.CaseID), zap.String("document_id", req.DocumentID), zap.String("type", req.Type))

	start := time.Now()
	text, err := s.Drafter.Draft(ctx, req)
	s.Metrics.GenerationSeconds(s.Drafter.Name(), time.Since(start).Seconds())
	if err != nil {
		log.Warn("draft failed", zap.String("provider", s.Drafter.Name()), zap.Error(err))
		return Output{}, fmt.Errorf("draft %s: %w", req.Type, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Output{}, ErrEmptyDraft
	}
	ref, err := s.Store.Put(ctx, ObjectKey(req), []byte(text+"\n"))
	if err != nil {
		return Output{}, fmt.Errorf("store %s: %w", req.Type, err)
	}
	log.Debug("document drafted", zap.String("file_ref", ref), zap.Int("chars", len(text)))
	return Output{FileRef: ref, Content: text}, nil
}

// ObjectKey is the storage key for a document: cases/<case>/<nn>-<type>-<id>.md.
func ObjectKey(req Request) string {
	return fmt.Sprintf("cases/%s/%02d-%s-%s.md", req.CaseID, req.Position, strings.ToLower(req.Type), req.DocumentID)
}
