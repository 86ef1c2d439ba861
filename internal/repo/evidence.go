package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"disputehub/internal/domain"
)

const evidenceColumns = `id,case_id,seq_index,file_ref,file_type,title,description,evidence_date,uploaded_by,created_at`

func scanEvidence(row rowScanner) (domain.EvidenceItem, error) {
	var it domain.EvidenceItem
	var desc, date sql.NullString
	err := row.Scan(&it.ID, &it.CaseID, &it.Index, &it.FileRef, &it.FileType, &it.Title, &desc, &date, &it.UploadedBy, &it.CreatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	it.Description = stringPtr(desc)
	it.EvidenceDate = stringPtr(date)
	return it, err
}

// InsertEvidenceTx stores an item whose Index was reserved with NextEvidenceIndexTx.
func (r Repo) InsertEvidenceTx(ctx context.Context, tx *sql.Tx, it domain.EvidenceItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO evidence_items(`+evidenceColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.CaseID, it.Index, it.FileRef, it.FileType, it.Title, nullableStringPtr(it.Description),
		nullableStringPtr(it.EvidenceDate), it.UploadedBy, it.CreatedAt)
	return err
}

func (r Repo) GetEvidence(ctx context.Context, caseID, id string) (domain.EvidenceItem, error) {
	return scanEvidence(r.DB.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence_items WHERE case_id=? AND id=?`, caseID, id))
}

func (r Repo) ListEvidence(ctx context.Context, caseID string) ([]domain.EvidenceItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+evidenceColumns+` FROM evidence_items WHERE case_id=? ORDER BY seq_index`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.EvidenceItem{}
	for rows.Next() {
		it, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) CountEvidence(ctx context.Context, caseID string) (int, error) {
	return r.CountEvidenceTx(ctx, nil, caseID)
}

func (r Repo) CountEvidenceTx(ctx context.Context, tx *sql.Tx, caseID string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM evidence_items WHERE case_id=?`, caseID).Scan(&n)
	return n, err
}

// EvidencePatch changes metadata only. The index and file are immutable.
type EvidencePatch struct {
	Title        *string
	Description  *string
	EvidenceDate *string
}

func (r Repo) UpdateEvidenceMeta(ctx context.Context, caseID, id string, p EvidencePatch) error {
	var (
		fields []string
		args   []any
	)
	if p.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullableStringPtr(p.Description))
	}
	if p.EvidenceDate != nil {
		fields = append(fields, "evidence_date=?")
		args = append(args, nullableStringPtr(p.EvidenceDate))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, caseID, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE evidence_items SET %s WHERE case_id=? AND id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if ok, _ := affected(res); !ok {
		return ErrNotFound
	}
	return nil
}

// DeleteEvidence removes one item. Surviving items keep their indices.
func (r Repo) DeleteEvidence(ctx context.Context, caseID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM evidence_items WHERE case_id=? AND id=?`, caseID, id)
	if err != nil {
		return err
	}
	if ok, _ := affected(res); !ok {
		return ErrNotFound
	}
	return nil
}
