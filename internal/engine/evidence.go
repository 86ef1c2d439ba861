package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"disputehub/internal/domain"
	"disputehub/internal/repo"
)

type EvidenceInput struct {
	CaseID       string
	FileRef      string
	FileType     string
	Title        string
	Description  *string
	EvidenceDate *string
	UploadedBy   string
}

// AddEvidence stores an item under the next permanent index for its case.
// Indices are never reused, even after deletion.
func (e Engine) AddEvidence(ctx context.Context, in EvidenceInput) (domain.EvidenceItem, error) {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return domain.EvidenceItem{}, errors.New("title is required")
	case strings.TrimSpace(in.FileRef) == "":
		return domain.EvidenceItem{}, errors.New("file_ref is required")
	case strings.TrimSpace(in.UploadedBy) == "":
		return domain.EvidenceItem{}, errors.New("uploaded_by is required")
	}
	if err := validDate(in.EvidenceDate); err != nil {
		return domain.EvidenceItem{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	item := domain.EvidenceItem{
		ID:           uuid.NewString(),
		CaseID:       in.CaseID,
		FileRef:      strings.TrimSpace(in.FileRef),
		FileType:     strings.TrimSpace(in.FileType),
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		EvidenceDate: in.EvidenceDate,
		UploadedBy:   in.UploadedBy,
		CreatedAt:    now,
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		c, err := e.Repo.GetCaseTx(ctx, tx, in.CaseID)
		if err != nil {
			return err
		}
		if c.LifecycleStatus == domain.LifecycleClosed {
			return ErrCaseClosed
		}
		idx, err := e.Repo.NextEvidenceIndexTx(ctx, tx, in.CaseID, now)
		if err != nil {
			return fmt.Errorf("reserve evidence index: %w", err)
		}
		item.Index = idx
		return e.Repo.InsertEvidenceTx(ctx, tx, item)
	})
	if err != nil {
		return domain.EvidenceItem{}, err
	}
	return item, nil
}

// UpdateEvidence changes title, description or date. The file and index are fixed.
func (e Engine) UpdateEvidence(ctx context.Context, caseID, id string, p repo.EvidencePatch) (domain.EvidenceItem, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return domain.EvidenceItem{}, errors.New("title cannot be blank")
	}
	if err := validDate(p.EvidenceDate); err != nil {
		return domain.EvidenceItem{}, err
	}
	if err := e.Repo.UpdateEvidenceMeta(ctx, caseID, id, p); err != nil {
		return domain.EvidenceItem{}, err
	}
	return e.Repo.GetEvidence(ctx, caseID, id)
}

func (e Engine) DeleteEvidence(ctx context.Context, caseID, id string) error {
	return e.Repo.DeleteEvidence(ctx, caseID, id)
}

func (e Engine) ListEvidence(ctx context.Context, caseID string) ([]domain.EvidenceItem, error) {
	if _, err := e.Repo.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return e.Repo.ListEvidence(ctx, caseID)
}

func validDate(d *string) error {
	if d == nil || *d == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", *d); err != nil {
		return fmt.Errorf("evidence_date must be YYYY-MM-DD: %w", err)
	}
	return nil
}
