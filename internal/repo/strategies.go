package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"disputehub/internal/domain"
)

func marshalList(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Repo) GetStrategy(ctx context.Context, caseID string) (domain.Strategy, error) {
	return r.GetStrategyTx(ctx, nil, caseID)
}

func (r Repo) GetStrategyTx(ctx context.Context, tx *sql.Tx, caseID string) (domain.Strategy, error) {
	var s domain.Strategy
	var facts, evidence string
	err := r.q(tx).QueryRowContext(ctx, `SELECT case_id,COALESCE(dispute_type,''),key_facts_json,evidence_mentioned_json,COALESCE(desired_outcome,''),updated_at FROM strategies WHERE case_id=?`, caseID).
		Scan(&s.CaseID, &s.DisputeType, &facts, &evidence, &s.DesiredOutcome, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if s.KeyFacts, err = unmarshalList(facts); err != nil {
		return s, fmt.Errorf("strategy %s key facts: %w", caseID, err)
	}
	if s.EvidenceMentioned, err = unmarshalList(evidence); err != nil {
		return s, fmt.Errorf("strategy %s evidence: %w", caseID, err)
	}
	return s, nil
}

func (r Repo) UpsertStrategyTx(ctx context.Context, tx *sql.Tx, s domain.Strategy) error {
	facts, err := marshalList(s.KeyFacts)
	if err != nil {
		return err
	}
	evidence, err := marshalList(s.EvidenceMentioned)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO strategies(case_id,dispute_type,key_facts_json,evidence_mentioned_json,desired_outcome,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(case_id) DO UPDATE SET dispute_type=excluded.dispute_type, key_facts_json=excluded.key_facts_json,
  evidence_mentioned_json=excluded.evidence_mentioned_json, desired_outcome=excluded.desired_outcome, updated_at=excluded.updated_at`,
		s.CaseID, nullable(s.DisputeType), facts, evidence, nullable(s.DesiredOutcome), s.UpdatedAt)
	return err
}

func (r Repo) DeleteStrategyTx(ctx context.Context, tx *sql.Tx, caseID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM strategies WHERE case_id=?`, caseID)
	return err
}
