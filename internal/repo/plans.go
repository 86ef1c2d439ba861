package repo

import (
	"context"
	"database/sql"
	"fmt"

	"disputehub/internal/domain"
)

func (r Repo) GetPlanByCase(ctx context.Context, caseID string) (domain.DocumentPlan, error) {
	return r.GetPlanByCaseTx(ctx, nil, caseID)
}

// GetPlanByCaseTx loads the plan without its documents.
func (r Repo) GetPlanByCaseTx(ctx context.Context, tx *sql.Tx, caseID string) (domain.DocumentPlan, error) {
	var p domain.DocumentPlan
	var allowed, blocked, prereqs string
	var timeLimit, deadline sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,case_id,complexity_level,complexity_score,document_type,allowed_types_json,blocked_types_json,
jurisdiction,forum,prerequisites_json,time_limit,deadline,created_at FROM document_plans WHERE case_id=?`, caseID).
		Scan(&p.ID, &p.CaseID, &p.ComplexityLevel, &p.ComplexityScore, &p.DocumentType, &allowed, &blocked,
			&p.Routing.Jurisdiction, &p.Routing.Forum, &prereqs, &timeLimit, &deadline, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.AllowedTypes, err = unmarshalList(allowed); err != nil {
		return p, fmt.Errorf("plan %s allowed types: %w", p.ID, err)
	}
	if p.BlockedTypes, err = unmarshalList(blocked); err != nil {
		return p, fmt.Errorf("plan %s blocked types: %w", p.ID, err)
	}
	if p.Routing.Prerequisites, err = unmarshalList(prereqs); err != nil {
		return p, fmt.Errorf("plan %s prerequisites: %w", p.ID, err)
	}
	p.Routing.TimeLimit = timeLimit.String
	p.Routing.Deadline = stringPtr(deadline)
	return p, nil
}

// InsertPlanTx stores a plan and its document stubs. The UNIQUE(case_id)
// constraint turns a second plan for the same case into ErrConflict.
func (r Repo) InsertPlanTx(ctx context.Context, tx *sql.Tx, p domain.DocumentPlan) error {
	allowed, err := marshalList(p.AllowedTypes)
	if err != nil {
		return err
	}
	blocked, err := marshalList(p.BlockedTypes)
	if err != nil {
		return err
	}
	prereqs, err := marshalList(p.Routing.Prerequisites)
	if err != nil {
		return err
	}
	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_plans WHERE case_id=?`, p.CaseID).Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("plan for case %s: %w", p.CaseID, ErrConflict)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO document_plans(id,case_id,complexity_level,complexity_score,document_type,allowed_types_json,blocked_types_json,
jurisdiction,forum,prerequisites_json,time_limit,deadline,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CaseID, p.ComplexityLevel, p.ComplexityScore, p.DocumentType, allowed, blocked,
		p.Routing.Jurisdiction, p.Routing.Forum, prereqs, nullable(p.Routing.TimeLimit), nullableStringPtr(p.Routing.Deadline), p.CreatedAt); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	for _, d := range p.Documents {
		if err := r.InsertDocumentTx(ctx, tx, d); err != nil {
			return err
		}
	}
	return nil
}

// DeletePlanTx removes the case plan; documents go with it.
func (r Repo) DeletePlanTx(ctx context.Context, tx *sql.Tx, caseID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM generated_documents WHERE case_id=?`, caseID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM document_plans WHERE case_id=?`, caseID)
	return err
}

const documentColumns = `id,plan_id,case_id,type,title,position,required,status,retry_count,last_error,file_ref,COALESCE(content,''),sent_at,created_at,updated_at`

func scanDocument(row rowScanner) (domain.GeneratedDocument, error) {
	var d domain.GeneratedDocument
	var required int
	var lastErr, fileRef, sentAt sql.NullString
	err := row.Scan(&d.ID, &d.PlanID, &d.CaseID, &d.Type, &d.Title, &d.Position, &required, &d.Status, &d.RetryCount,
		&lastErr, &fileRef, &d.Content, &sentAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	d.Required = required == 1
	d.LastError = stringPtr(lastErr)
	d.FileRef = stringPtr(fileRef)
	d.SentAt = stringPtr(sentAt)
	return d, err
}

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.GeneratedDocument) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO generated_documents(id,plan_id,case_id,type,title,position,required,status,retry_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.PlanID, d.CaseID, d.Type, d.Title, d.Position, boolInt(d.Required), d.Status, d.RetryCount, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.Type, err)
	}
	return nil
}

func (r Repo) NextDocumentPositionTx(ctx context.Context, tx *sql.Tx, planID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position),0)+1 FROM generated_documents WHERE plan_id=?`, planID).Scan(&pos)
	return pos, err
}

func (r Repo) GetDocument(ctx context.Context, caseID, id string) (domain.GeneratedDocument, error) {
	return scanDocument(r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE case_id=? AND id=?`, caseID, id))
}

// ListDocuments returns documents for a case in plan order, optionally filtered by status.
func (r Repo) ListDocuments(ctx context.Context, caseID, status string) ([]domain.GeneratedDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM generated_documents WHERE case_id=?`
	args := []any{caseID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY position`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.GeneratedDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// CompleteDocument moves a PENDING document to COMPLETED.
func (r Repo) CompleteDocument(ctx context.Context, id, fileRef, content, now string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE generated_documents SET status=?, file_ref=?, content=?, last_error=NULL, updated_at=? WHERE id=? AND status=?`,
		domain.DocumentCompleted, nullable(fileRef), content, now, id, domain.DocumentPending)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// FailDocument moves a PENDING document to FAILED with the error message.
func (r Repo) FailDocument(ctx context.Context, id, lastError, now string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE generated_documents SET status=?, last_error=?, updated_at=? WHERE id=? AND status=?`,
		domain.DocumentFailed, lastError, now, id, domain.DocumentPending)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// RequeueFailedDocument returns a FAILED document below the retry ceiling to
// PENDING and counts the retry.
func (r Repo) RequeueFailedDocument(ctx context.Context, id string, maxRetries int, now string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE generated_documents SET status=?, retry_count=retry_count+1, last_error=NULL, updated_at=?
WHERE id=? AND status=? AND retry_count<?`, domain.DocumentPending, now, id, domain.DocumentFailed, maxRetries)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkDocumentSentTx stamps sent_at on a COMPLETED document that has not been sent.
func (r Repo) MarkDocumentSentTx(ctx context.Context, tx *sql.Tx, caseID, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE generated_documents SET sent_at=?, updated_at=? WHERE case_id=? AND id=? AND status=? AND sent_at IS NULL`,
		now, now, caseID, id, domain.DocumentCompleted)
	if err != nil {
		return false, err
	}
	return affected(res)
}
