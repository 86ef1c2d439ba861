package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"disputehub/internal/docgen"
	"disputehub/internal/domain"
	"disputehub/internal/repo"
	"disputehub/internal/timeline"
)

// BatchResult counts the outcome of one generation pass.
type BatchResult struct {
	Total     int `json:"total"`
	Attempted int `json:"attempted"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type generationInput struct {
	plan     domain.DocumentPlan
	strategy domain.Strategy
	evidence []domain.EvidenceItem
	total    int
}

func (e Engine) generationInput(ctx context.Context, caseID string) (generationInput, error) {
	plan, err := e.Repo.GetPlanByCase(ctx, caseID)
	if err != nil {
		return generationInput{}, err
	}
	s, err := e.Repo.GetStrategy(ctx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		s, err = emptyStrategy(caseID), nil
	}
	if err != nil {
		return generationInput{}, err
	}
	evidence, err := e.Repo.ListEvidence(ctx, caseID)
	if err != nil {
		return generationInput{}, err
	}
	docs, err := e.Repo.ListDocuments(ctx, caseID, "")
	if err != nil {
		return generationInput{}, err
	}
	return generationInput{plan: plan, strategy: s, evidence: evidence, total: len(docs)}, nil
}

// GenerateDocuments generates every PENDING document of the case plan in plan
// order. A document that fails is marked FAILED and the batch carries on.
func (e Engine) GenerateDocuments(ctx context.Context, caseID string) (BatchResult, error) {
	if e.Generator == nil {
		return BatchResult{}, errors.New("document generator not configured")
	}
	in, err := e.generationInput(ctx, caseID)
	if err != nil {
		return BatchResult{}, err
	}
	pending, err := e.Repo.ListDocuments(ctx, caseID, domain.DocumentPending)
	if err != nil {
		return BatchResult{}, err
	}
	res := BatchResult{Total: in.total}
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.generateOne(ctx, in, d, &res)
	}
	return res, nil
}

// generateOne drafts one document and records the outcome. The status
// updates are conditional on PENDING, so a document finished by another
// caller is counted as skipped.
func (e Engine) generateOne(ctx context.Context, in generationInput, d domain.GeneratedDocument, res *BatchResult) {
	log := e.logger("docgen").With(zap.String("case_id", d.CaseID), zap.String("document_id", d.ID), zap.String("type", d.Type))
	res.Attempted++
	if e.Generator == nil {
		res.Skipped++
		return
	}
	out, genErr := e.Generator.Generate(ctx, docgen.Request{
		DocumentID: d.ID,
		Type:       d.Type,
		Title:      d.Title,
		CaseID:     d.CaseID,
		Strategy:   in.strategy,
		Routing:    in.plan.Routing,
		Evidence:   in.evidence,
		Position:   d.Position,
		Total:      in.total,
	})
	now := e.now().UTC().Format(time.RFC3339)
	docID := d.ID
	if genErr != nil {
		ok, err := e.Repo.FailDocument(ctx, d.ID, genErr.Error(), now)
		if err != nil {
			log.Error("record generation failure", zap.Error(err))
			res.Failed++
			return
		}
		if !ok {
			res.Skipped++
			return
		}
		res.Failed++
		e.Metrics.Document(d.Type, domain.DocumentFailed)
		log.Warn("document generation failed", zap.Error(genErr))
		if _, err := e.Timeline.Append(ctx, timeline.Entry{
			CaseID:            d.CaseID,
			Type:              domain.EventDocumentGenerationFailed,
			Description:       fmt.Sprintf("%s failed: %s", d.Title, genErr.Error()),
			RelatedDocumentID: &docID,
		}); err != nil {
			log.Warn("append failure event", zap.Error(err))
		}
		return
	}
	ok, err := e.Repo.CompleteDocument(ctx, d.ID, out.FileRef, out.Content, now)
	if err != nil {
		log.Error("record generated document", zap.Error(err))
		res.Failed++
		return
	}
	if !ok {
		res.Skipped++
		return
	}
	res.Completed++
	e.Metrics.Document(d.Type, domain.DocumentCompleted)
	if _, err := e.Timeline.Append(ctx, timeline.Entry{
		CaseID:            d.CaseID,
		Type:              domain.EventDocumentGenerated,
		Description:       d.Title + " generated",
		RelatedDocumentID: &docID,
	}); err != nil {
		log.Warn("append generated event", zap.Error(err))
	}
	d.Status = domain.DocumentCompleted
	d.UpdatedAt = now
	e.Timeline.NotifyDocumentGenerated(ctx, d)
}

// RetryDocument requeues one FAILED document below the retry ceiling and
// generates it again.
func (e Engine) RetryDocument(ctx context.Context, caseID, documentID string) (domain.GeneratedDocument, error) {
	d, err := e.Repo.GetDocument(ctx, caseID, documentID)
	if err != nil {
		return d, err
	}
	if d.Status != domain.DocumentFailed {
		return d, fmt.Errorf("document is %s: %w", d.Status, ErrRetryNotAllowed)
	}
	ceiling := e.maxRetries()
	if d.RetryCount >= ceiling {
		return d, fmt.Errorf("retry limit of %d reached: %w", ceiling, ErrRetryNotAllowed)
	}
	if e.Generator == nil {
		return d, errors.New("document generator not configured")
	}
	// Load everything the draft needs before spending a retry.
	in, err := e.generationInput(ctx, caseID)
	if err != nil {
		return d, err
	}
	ok, err := e.Repo.RequeueFailedDocument(ctx, documentID, ceiling, e.now().UTC().Format(time.RFC3339))
	if err != nil {
		return d, err
	}
	if !ok {
		return d, fmt.Errorf("document changed concurrently: %w", ErrRetryNotAllowed)
	}
	d.Status = domain.DocumentPending
	d.RetryCount++
	var res BatchResult
	e.generateOne(ctx, in, d, &res)
	return e.Repo.GetDocument(ctx, caseID, documentID)
}

// RetryFailedDocuments requeues every FAILED document still below the retry
// ceiling and generates them. Documents at the ceiling are skipped.
func (e Engine) RetryFailedDocuments(ctx context.Context, caseID string) (BatchResult, error) {
	if _, err := e.Repo.GetCase(ctx, caseID); err != nil {
		return BatchResult{}, err
	}
	failed, err := e.Repo.ListDocuments(ctx, caseID, domain.DocumentFailed)
	if err != nil {
		return BatchResult{}, err
	}
	ceiling := e.maxRetries()
	now := e.now().UTC().Format(time.RFC3339)
	skipped := 0
	for _, d := range failed {
		ok, err := e.Repo.RequeueFailedDocument(ctx, d.ID, ceiling, now)
		if err != nil {
			return BatchResult{}, err
		}
		if !ok {
			skipped++
		}
	}
	res, err := e.GenerateDocuments(ctx, caseID)
	res.Skipped += skipped
	return res, err
}
