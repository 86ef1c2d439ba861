package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"disputehub/internal/domain"
	"disputehub/internal/planner"
	"disputehub/internal/policy"
	"disputehub/internal/repo"
	"disputehub/internal/timeline"
)

// Reasons the gate did not run.
const (
	ReasonLocked     = "strategy_locked"
	ReasonRestricted = "restricted"
	ReasonClosed     = "case_closed"
	ReasonIncomplete = "incomplete"
)

// TriggerCheck is the outcome of the trigger predicate with its inputs.
type TriggerCheck struct {
	ShouldTrigger bool          `json:"should_trigger"`
	Reason        string        `json:"reason,omitempty"`
	Completeness  policy.Report `json:"completeness"`
}

// GateResult reports one Execute call. Executed is false with a Reason when a
// precondition did not hold; that is not an error.
type GateResult struct {
	CaseID          string `json:"case_id"`
	Executed        bool   `json:"executed"`
	Reason          string `json:"reason,omitempty"`
	PlanID          string `json:"plan_id,omitempty"`
	PlanCreated     bool   `json:"plan_created"`
	Documents       int    `json:"documents"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	GenerationError string `json:"generation_error,omitempty"`
	// Shared is set when this call joined an in-flight Execute for the same case.
	Shared bool `json:"shared,omitempty"`
}

// CheckTrigger evaluates whether the gate should run for the case.
func (e Engine) CheckTrigger(ctx context.Context, caseID string) (TriggerCheck, error) {
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return TriggerCheck{}, err
	}
	s, err := e.Repo.GetStrategy(ctx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		s, err = emptyStrategy(caseID), nil
	}
	if err != nil {
		return TriggerCheck{}, err
	}
	return e.triggerCheck(c, &s), nil
}

func (e Engine) triggerCheck(c domain.Case, s *domain.Strategy) TriggerCheck {
	tc := TriggerCheck{Completeness: e.completeness().Evaluate(s)}
	switch {
	case c.StrategyLocked:
		tc.Reason = ReasonLocked
	case c.Restricted:
		tc.Reason = ReasonRestricted
	case c.LifecycleStatus == domain.LifecycleClosed:
		tc.Reason = ReasonClosed
	case !tc.Completeness.Complete:
		tc.Reason = ReasonIncomplete
	default:
		tc.ShouldTrigger = true
	}
	return tc
}

// ShouldTrigger reports whether the case exists, is unlocked, unrestricted
// and has a complete strategy. A missing case is false, not an error.
func (e Engine) ShouldTrigger(ctx context.Context, caseID string) (bool, error) {
	tc, err := e.CheckTrigger(ctx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return tc.ShouldTrigger, err
}

// Execute runs the decision gate: lock the strategy, record it, create the
// document plan if none exists, then generate the pending documents.
// Concurrent calls for one case share a single run in this process; across
// processes the conditional lock update admits exactly one.
func (e Engine) Execute(ctx context.Context, caseID string) (GateResult, error) {
	if e.flight == nil {
		return e.execute(ctx, caseID)
	}
	v, err, shared := e.flight.Do(caseID, func() (any, error) {
		return e.execute(context.WithoutCancel(ctx), caseID)
	})
	res, _ := v.(GateResult)
	res.Shared = shared
	return res, err
}

func (e Engine) execute(ctx context.Context, caseID string) (GateResult, error) {
	log := e.logger("gate").With(zap.String("case_id", caseID))
	res := GateResult{CaseID: caseID}

	tc, err := e.CheckTrigger(ctx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		res.Reason = "not_found"
		e.Metrics.Gate("skipped")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if !tc.ShouldTrigger {
		res.Reason = tc.Reason
		e.Metrics.Gate("skipped")
		log.Debug("gate skipped", zap.String("reason", tc.Reason))
		return res, nil
	}

	events, plan, created, reason, err := e.lockAndPlan(ctx, caseID, log)
	if err != nil {
		e.Metrics.Gate("error")
		log.Error("gate failed, nothing committed", zap.Error(err))
		return res, err
	}
	if reason != "" {
		res.Reason = reason
		e.Metrics.Gate("skipped")
		log.Info("gate lost the lock race", zap.String("reason", reason))
		return res, nil
	}
	e.Timeline.Dispatch(ctx, events...)
	res.Executed = true
	res.PlanID = plan.ID
	res.PlanCreated = created
	e.Metrics.Gate("executed")

	log.Info("step: generate documents", zap.String("plan_id", plan.ID))
	batch, err := e.GenerateDocuments(ctx, caseID)
	res.Documents = batch.Total
	res.Completed = batch.Completed
	res.Failed = batch.Failed
	if err != nil {
		res.GenerationError = err.Error()
		log.Warn("batch generation did not finish", zap.Error(err))
	}
	log.Info("gate executed", zap.Int("completed", res.Completed), zap.Int("failed", res.Failed))
	return res, nil
}

// lockAndPlan performs the irreversible part of the gate in one transaction.
// A non-empty reason means another caller took the lock first.
func (e Engine) lockAndPlan(ctx context.Context, caseID string, log *zap.Logger) ([]domain.TimelineEvent, domain.DocumentPlan, bool, string, error) {
	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.DocumentPlan{}, false, "", err
	}
	defer tx.Rollback()

	locked, err := e.Repo.LockCaseTx(ctx, tx, caseID, nowStr)
	if err != nil {
		return nil, domain.DocumentPlan{}, false, "", fmt.Errorf("lock strategy: %w", err)
	}
	if !locked {
		return nil, domain.DocumentPlan{}, false, ReasonLocked, nil
	}
	log.Info("step: strategy locked")

	s, err := e.Repo.GetStrategyTx(ctx, tx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.DocumentPlan{}, false, "", fmt.Errorf("compute plan: %w", planner.ErrNoStrategy)
	}
	if err != nil {
		return nil, domain.DocumentPlan{}, false, "", err
	}
	if !e.completeness().IsComplete(&s) {
		return nil, domain.DocumentPlan{}, false, ReasonIncomplete, nil
	}

	var events []domain.TimelineEvent
	ev, err := e.Timeline.AppendTx(ctx, tx, timeline.Entry{CaseID: caseID, Type: domain.EventStrategyFinalised, Description: "Strategy finalised and locked"})
	if err != nil {
		return nil, domain.DocumentPlan{}, false, "", err
	}
	events = append(events, ev)
	log.Info("step: strategy finalised event appended")

	created := false
	plan, err := e.Repo.GetPlanByCaseTx(ctx, tx, caseID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		evidenceCount, err := e.Repo.CountEvidenceTx(ctx, tx, caseID)
		if err != nil {
			return nil, domain.DocumentPlan{}, false, "", err
		}
		draft, err := e.Planner.Compute(&s, evidenceCount, now)
		if err != nil {
			return nil, domain.DocumentPlan{}, false, "", fmt.Errorf("compute plan: %w", err)
		}
		plan = buildPlan(caseID, draft, nowStr)
		if err := e.Repo.InsertPlanTx(ctx, tx, plan); err != nil {
			return nil, domain.DocumentPlan{}, false, "", fmt.Errorf("persist plan: %w", err)
		}
		ev, err := e.Timeline.AppendTx(ctx, tx, timeline.Entry{CaseID: caseID, Type: domain.EventDocumentPlanCreated, Description: draft.Describe()})
		if err != nil {
			return nil, domain.DocumentPlan{}, false, "", err
		}
		events = append(events, ev)
		created = true
		log.Info("step: document plan created", zap.String("plan_id", plan.ID), zap.String("level", plan.ComplexityLevel), zap.Int("documents", len(plan.Documents)))
	case err != nil:
		return nil, domain.DocumentPlan{}, false, "", err
	default:
		log.Info("step: existing document plan reused", zap.String("plan_id", plan.ID))
	}

	if err := e.Repo.SetPhaseTx(ctx, tx, caseID, domain.PhaseDocuments, nowStr); err != nil {
		return nil, domain.DocumentPlan{}, false, "", err
	}
	ev, err = e.Timeline.AppendTx(ctx, tx, timeline.Entry{CaseID: caseID, Type: domain.EventDocumentsGenerating, Description: "Document generation started"})
	if err != nil {
		return nil, domain.DocumentPlan{}, false, "", err
	}
	events = append(events, ev)
	log.Info("step: documents generating event appended")

	if err := tx.Commit(); err != nil {
		return nil, domain.DocumentPlan{}, false, "", err
	}
	return events, plan, created, "", nil
}

func buildPlan(caseID string, d planner.Draft, now string) domain.DocumentPlan {
	p := domain.DocumentPlan{
		ID:              uuid.NewString(),
		CaseID:          caseID,
		ComplexityLevel: d.Complexity.Level,
		ComplexityScore: d.Complexity.Score,
		DocumentType:    d.Complexity.DocumentStructure,
		AllowedTypes:    d.Complexity.RecommendedDocuments,
		BlockedTypes:    d.Complexity.BlockedDocuments,
		Routing:         d.Routing,
		CreatedAt:       now,
	}
	for _, stub := range d.Documents {
		p.Documents = append(p.Documents, domain.GeneratedDocument{
			ID:        uuid.NewString(),
			PlanID:    p.ID,
			CaseID:    caseID,
			Type:      stub.Type,
			Title:     stub.Title,
			Position:  stub.Position,
			Required:  stub.Required,
			Status:    domain.DocumentPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return p
}

// withTx is used by callers that only need a transaction around repo calls.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
