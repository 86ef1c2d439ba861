package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"disputehub/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q picks the transaction when one is given.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnsureUser inserts the user if absent and fills in missing contact details.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,email,display_name,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET email=COALESCE(users.email, excluded.email), display_name=COALESCE(users.display_name, excluded.display_name)`,
		u.ID, nullable(u.Email), nullable(u.DisplayName), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(email,''),COALESCE(display_name,''),created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

const caseColumns = `id,user_id,title,strategy_locked,restricted,phase,chat_state,lifecycle_status,waiting_until,evidence_seq,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.Case, error) {
	var c domain.Case
	var locked, restricted int
	var waiting sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &locked, &restricted, &c.Phase, &c.ChatState, &c.LifecycleStatus,
		&waiting, &c.EvidenceSeq, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.StrategyLocked = locked == 1
	c.Restricted = restricted == 1
	c.WaitingUntil = stringPtr(waiting)
	return c, nil
}

func (r Repo) InsertCase(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO cases(`+caseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.UserID, c.Title, boolInt(c.StrategyLocked), boolInt(c.Restricted), c.Phase, c.ChatState, c.LifecycleStatus,
		nullableStringPtr(c.WaitingUntil), c.EvidenceSeq, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return r.GetCaseTx(ctx, nil, id)
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(r.q(tx).QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

type CaseFilters struct {
	UserID          string
	LifecycleStatus string
	Limit           int
}

func (r Repo) ListCases(ctx context.Context, f CaseFilters) ([]domain.Case, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.LifecycleStatus != "" {
		clauses = append(clauses, "lifecycle_status=?")
		args = append(args, f.LifecycleStatus)
	}
	query := fmt.Sprintf(`SELECT %s FROM cases WHERE %s ORDER BY created_at DESC, id DESC`, caseColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// LockCaseTx sets strategy_locked only if the case is currently unlocked and
// unrestricted. It reports whether this call took the lock.
func (r Repo) LockCaseTx(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET strategy_locked=1, updated_at=? WHERE id=? AND strategy_locked=0 AND restricted=0`, now, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ResetCaseTx unlocks the case and returns it to intake.
func (r Repo) ResetCaseTx(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET strategy_locked=0, phase=?, chat_state=?, lifecycle_status=?, waiting_until=NULL, updated_at=? WHERE id=?`,
		domain.PhaseIntake, domain.ChatStateGathering, domain.LifecycleActive, now, id)
	if err != nil {
		return err
	}
	if ok, err := affected(res); err != nil || !ok {
		if err == nil {
			err = ErrNotFound
		}
		return err
	}
	return nil
}

func (r Repo) SetPhaseTx(ctx context.Context, tx *sql.Tx, id, phase, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE cases SET phase=?, updated_at=? WHERE id=?`, phase, now, id)
	return err
}

func (r Repo) SetChatState(ctx context.Context, id, state, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE cases SET chat_state=?, updated_at=? WHERE id=? AND chat_state<>?`, state, now, id, state)
	return err
}

func (r Repo) SetRestricted(ctx context.Context, id string, restricted bool, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE cases SET restricted=?, updated_at=? WHERE id=?`, boolInt(restricted), now, id)
	if err != nil {
		return err
	}
	if ok, _ := affected(res); !ok {
		return ErrNotFound
	}
	return nil
}

// MarkWaitingTx moves a case to WAITING after a document went out.
func (r Repo) MarkWaitingTx(ctx context.Context, tx *sql.Tx, id, waitingUntil, now string) error {
	_, err := tx.ExecContext(ctx, `UPDATE cases SET phase=?, lifecycle_status=?, waiting_until=?, updated_at=? WHERE id=?`,
		domain.PhaseSent, domain.LifecycleWaiting, waitingUntil, now, id)
	return err
}

// CloseCaseTx closes an open case. It reports false when the case was already closed.
func (r Repo) CloseCaseTx(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET phase=?, lifecycle_status=?, waiting_until=NULL, updated_at=? WHERE id=? AND lifecycle_status<>?`,
		domain.PhaseClosed, domain.LifecycleClosed, now, id, domain.LifecycleClosed)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// ListWaitingDue returns waiting cases whose waiting_until is at or before now.
func (r Repo) ListWaitingDue(ctx context.Context, now string, limit int) ([]domain.Case, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE lifecycle_status=? AND waiting_until IS NOT NULL AND waiting_until<=? ORDER BY waiting_until LIMIT ?`,
		domain.LifecycleWaiting, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ClearWaitingUntilTx clears waiting_until if it still holds the expected value,
// so each missed deadline is reported once.
func (r Repo) ClearWaitingUntilTx(ctx context.Context, tx *sql.Tx, id, expected, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET waiting_until=NULL, updated_at=? WHERE id=? AND waiting_until=?`, now, id, expected)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// NextEvidenceIndexTx reserves the next permanent evidence index for a case.
func (r Repo) NextEvidenceIndexTx(ctx context.Context, tx *sql.Tx, caseID, now string) (int, error) {
	var idx int
	err := tx.QueryRowContext(ctx, `UPDATE cases SET evidence_seq=evidence_seq+1, updated_at=? WHERE id=? RETURNING evidence_seq`, now, caseID).Scan(&idx)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return idx, err
}
