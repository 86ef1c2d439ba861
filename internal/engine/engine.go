package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"disputehub/internal/complexity"
	"disputehub/internal/config"
	"disputehub/internal/docgen"
	"disputehub/internal/domain"
	"disputehub/internal/metrics"
	"disputehub/internal/planner"
	"disputehub/internal/policy"
	"disputehub/internal/repo"
	"disputehub/internal/sufficiency"
	"disputehub/internal/timeline"
)

var (
	ErrStrategyLocked  = errors.New("strategy is locked")
	ErrCaseRestricted  = errors.New("case is restricted")
	ErrRetryNotAllowed = errors.New("retry not allowed")
	ErrCaseClosed      = errors.New("case is closed")
)

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Timeline    timeline.Log
	Config      *config.Config
	Sufficiency *sufficiency.Policy
	Planner     planner.Planner
	Generator   docgen.Generator
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
	Now         func() time.Time

	flight *singleflight.Group
}

// New wires an engine around db with the given policy. Notifications are off
// until Timeline.Notifier is set.
func New(db *sql.DB, cfg *config.Config, gen docgen.Generator) (Engine, error) {
	if cfg == nil {
		return Engine{}, errors.New("config not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	suff, err := sufficiency.New(cfg.Sufficiency)
	if err != nil {
		return Engine{}, err
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:          db,
		Repo:        r,
		Timeline:    timeline.Log{Repo: r, Policy: cfg.Notifications},
		Config:      cfg,
		Sufficiency: suff,
		Planner:     planner.New(complexity.New(cfg.Complexity)),
		Generator:   gen,
		Now:         time.Now,
		flight:      &singleflight.Group{},
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger(name string) *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger.Named(name)
}

func (e Engine) completeness() policy.CompletenessPolicy {
	if e.Config == nil {
		return policy.DefaultCompleteness()
	}
	return e.Config.Completeness
}

func (e Engine) maxRetries() int {
	if e.Config == nil || e.Config.Generation.MaxRetries < 1 {
		return 3
	}
	return e.Config.Generation.MaxRetries
}

// CreateCaseOptions are parameters for opening a case.
type CreateCaseOptions struct {
	ID        string
	UserID    string
	UserEmail string
	UserName  string
	Title     string
}

func (e Engine) CreateCase(ctx context.Context, opts CreateCaseOptions) (domain.Case, error) {
	if strings.TrimSpace(opts.UserID) == "" {
		return domain.Case{}, errors.New("user is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Case{}, errors.New("title is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	c := domain.Case{
		ID:              id,
		UserID:          opts.UserID,
		Title:           strings.TrimSpace(opts.Title),
		Phase:           domain.PhaseIntake,
		ChatState:       domain.ChatStateGathering,
		LifecycleStatus: domain.LifecycleActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureUser(ctx, tx, domain.User{ID: opts.UserID, Email: opts.UserEmail, DisplayName: opts.UserName, CreatedAt: now}); err != nil {
		return domain.Case{}, fmt.Errorf("ensure user: %w", err)
	}
	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return domain.Case{}, fmt.Errorf("insert case: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

func (e Engine) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return e.Repo.GetCase(ctx, id)
}

func (e Engine) ListCases(ctx context.Context, f repo.CaseFilters) ([]domain.Case, error) {
	return e.Repo.ListCases(ctx, f)
}

// GetStrategy returns the case strategy, or an empty one when nothing has
// been extracted yet.
func (e Engine) GetStrategy(ctx context.Context, caseID string) (domain.Strategy, error) {
	if _, err := e.Repo.GetCase(ctx, caseID); err != nil {
		return domain.Strategy{}, err
	}
	s, err := e.Repo.GetStrategy(ctx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		return emptyStrategy(caseID), nil
	}
	return s, err
}

func emptyStrategy(caseID string) domain.Strategy {
	return domain.Strategy{CaseID: caseID, KeyFacts: []string{}, EvidenceMentioned: []string{}}
}

// Completeness evaluates the current strategy against the completeness policy.
func (e Engine) Completeness(ctx context.Context, caseID string) (policy.Report, error) {
	s, err := e.GetStrategy(ctx, caseID)
	if err != nil {
		return policy.Report{}, err
	}
	return e.completeness().Evaluate(&s), nil
}

// ApplyStrategyDelta merges one turn of extracted changes into the strategy.
// The lock is checked in the same transaction as the write.
func (e Engine) ApplyStrategyDelta(ctx context.Context, caseID string, d domain.StrategyDelta) (domain.Strategy, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Strategy{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.Strategy{}, err
	}
	if c.LifecycleStatus == domain.LifecycleClosed {
		return domain.Strategy{}, ErrCaseClosed
	}
	if c.StrategyLocked {
		return domain.Strategy{}, ErrStrategyLocked
	}
	s, err := e.Repo.GetStrategyTx(ctx, tx, caseID)
	if errors.Is(err, repo.ErrNotFound) {
		s, err = emptyStrategy(caseID), nil
	}
	if err != nil {
		return domain.Strategy{}, err
	}
	applyDelta(&s, d)
	s.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertStrategyTx(ctx, tx, s); err != nil {
		return domain.Strategy{}, fmt.Errorf("save strategy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Strategy{}, err
	}
	return s, nil
}

// applyDelta appends new facts and evidence mentions, skipping blanks and
// exact repeats, and replaces dispute type and outcome when given.
func applyDelta(s *domain.Strategy, d domain.StrategyDelta) {
	if d.DisputeType != nil {
		s.DisputeType = strings.TrimSpace(*d.DisputeType)
	}
	if d.DesiredOutcome != nil {
		s.DesiredOutcome = strings.TrimSpace(*d.DesiredOutcome)
	}
	s.KeyFacts = appendUnique(s.KeyFacts, d.AddFacts)
	s.EvidenceMentioned = appendUnique(s.EvidenceMentioned, d.AddEvidence)
}

func appendUnique(list, add []string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[strings.ToLower(v)] = true
	}
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		list = append(list, v)
	}
	if list == nil {
		list = []string{}
	}
	return list
}

func deltaEmpty(d *domain.StrategyDelta) bool {
	return d == nil || (d.DisputeType == nil && d.DesiredOutcome == nil && len(d.AddFacts) == 0 && len(d.AddEvidence) == 0)
}

// ResetStrategy clears the strategy, plan and documents and unlocks the case.
// It is an operator action; the timeline keeps the history.
func (e Engine) ResetStrategy(ctx context.Context, caseID string) (domain.Case, error) {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetCaseTx(ctx, tx, caseID); err != nil {
		return domain.Case{}, err
	}
	if err := e.Repo.DeletePlanTx(ctx, tx, caseID); err != nil {
		return domain.Case{}, fmt.Errorf("delete plan: %w", err)
	}
	if err := e.Repo.DeleteStrategyTx(ctx, tx, caseID); err != nil {
		return domain.Case{}, fmt.Errorf("delete strategy: %w", err)
	}
	if err := e.Repo.ResetCaseTx(ctx, tx, caseID, now); err != nil {
		return domain.Case{}, err
	}
	ev, err := e.Timeline.AppendTx(ctx, tx, timeline.Entry{CaseID: caseID, Type: domain.EventStrategyReset, Description: "Strategy reset and unlocked"})
	if err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	e.Timeline.Dispatch(ctx, ev)
	e.logger("gate").Info("strategy reset", zap.String("case_id", caseID))
	return e.Repo.GetCase(ctx, caseID)
}

func (e Engine) SetRestricted(ctx context.Context, caseID string, restricted bool) (domain.Case, error) {
	if err := e.Repo.SetRestricted(ctx, caseID, restricted, e.now().UTC().Format(time.RFC3339)); err != nil {
		return domain.Case{}, err
	}
	return e.Repo.GetCase(ctx, caseID)
}

func (e Engine) CloseCase(ctx context.Context, caseID, reason string) (domain.Case, error) {
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetCaseTx(ctx, tx, caseID); err != nil {
		return domain.Case{}, err
	}
	ok, err := e.Repo.CloseCaseTx(ctx, tx, caseID, now)
	if err != nil {
		return domain.Case{}, err
	}
	if !ok {
		return domain.Case{}, ErrCaseClosed
	}
	desc := "Case closed"
	if r := strings.TrimSpace(reason); r != "" {
		desc += ": " + r
	}
	ev, err := e.Timeline.AppendTx(ctx, tx, timeline.Entry{CaseID: caseID, Type: domain.EventCaseClosed, Description: desc})
	if err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	e.Timeline.Dispatch(ctx, ev)
	return e.Repo.GetCase(ctx, caseID)
}

// MarkDocumentSent records that a completed document went to the other
// side and starts the response window.
func (e Engine) MarkDocumentSent(ctx context.Context, caseID, documentID string) (domain.GeneratedDocument, error) {
	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	days := 14
	if e.Config != nil && e.Config.Notifications.FollowUpDays > 0 {
		days = e.Config.Notifications.FollowUpDays
	}
	waitingUntil := now.AddDate(0, 0, days).Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	if c.LifecycleStatus == domain.LifecycleClosed {
		return domain.GeneratedDocument{}, ErrCaseClosed
	}
	ok, err := e.Repo.MarkDocumentSentTx(ctx, tx, caseID, documentID, nowStr)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	if !ok {
		doc, err := e.Repo.GetDocument(ctx, caseID, documentID)
		if err != nil {
			return domain.GeneratedDocument{}, err
		}
		return doc, fmt.Errorf("document %s is %s and cannot be sent: %w", doc.ID, doc.Status, repo.ErrConflict)
	}
	if err := e.Repo.MarkWaitingTx(ctx, tx, caseID, waitingUntil, nowStr); err != nil {
		return domain.GeneratedDocument{}, err
	}
	ev, err := e.Timeline.AppendTx(ctx, tx, timeline.Entry{
		CaseID:            caseID,
		Type:              domain.EventDocumentSent,
		Description:       "Document sent; response due by " + waitingUntil,
		RelatedDocumentID: &documentID,
	})
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GeneratedDocument{}, err
	}
	e.Timeline.Dispatch(ctx, ev)
	return e.Repo.GetDocument(ctx, caseID, documentID)
}

type SweepResult struct {
	Checked int      `json:"checked"`
	Missed  []string `json:"missed"`
}

// SweepDeadlines appends DEADLINE_MISSED once for every waiting case whose
// response window has passed.
func (e Engine) SweepDeadlines(ctx context.Context, limit int) (SweepResult, error) {
	now := e.now().UTC().Format(time.RFC3339)
	due, err := e.Repo.ListWaitingDue(ctx, now, limit)
	if err != nil {
		return SweepResult{}, err
	}
	res := SweepResult{Checked: len(due), Missed: []string{}}
	for _, c := range due {
		if c.WaitingUntil == nil {
			continue
		}
		ev, ok, err := e.markDeadlineMissed(ctx, c.ID, *c.WaitingUntil, now)
		if err != nil {
			return res, fmt.Errorf("case %s: %w", c.ID, err)
		}
		if !ok {
			continue
		}
		e.Timeline.Dispatch(ctx, ev)
		res.Missed = append(res.Missed, c.ID)
	}
	return res, nil
}

func (e Engine) markDeadlineMissed(ctx context.Context, caseID, waitingUntil, now string) (domain.TimelineEvent, bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TimelineEvent{}, false, err
	}
	defer tx.Rollback()

	ok, err := e.Repo.ClearWaitingUntilTx(ctx, tx, caseID, waitingUntil, now)
	if err != nil || !ok {
		return domain.TimelineEvent{}, false, err
	}
	ev, err := e.Timeline.AppendTx(ctx, tx, timeline.Entry{
		CaseID:      caseID,
		Type:        domain.EventDeadlineMissed,
		Description: "No response received by " + waitingUntil,
	})
	if err != nil {
		return domain.TimelineEvent{}, false, err
	}
	return ev, true, tx.Commit()
}

// GenerateFollowUp adds a follow-up letter to the plan of a waiting case and
// generates it straight away.
func (e Engine) GenerateFollowUp(ctx context.Context, caseID string) (domain.GeneratedDocument, error) {
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	if c.Restricted {
		return domain.GeneratedDocument{}, ErrCaseRestricted
	}
	if c.LifecycleStatus != domain.LifecycleWaiting {
		return domain.GeneratedDocument{}, fmt.Errorf("case is %s, follow-ups need a sent document: %w", c.LifecycleStatus, repo.ErrConflict)
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	defer tx.Rollback()

	plan, err := e.Repo.GetPlanByCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	pos, err := e.Repo.NextDocumentPositionTx(ctx, tx, plan.ID)
	if err != nil {
		return domain.GeneratedDocument{}, err
	}
	doc := domain.GeneratedDocument{
		ID:        uuid.NewString(),
		PlanID:    plan.ID,
		CaseID:    caseID,
		Type:      complexity.DocFollowUpLetter,
		Title:     complexity.Title(complexity.DocFollowUpLetter),
		Position:  pos,
		Status:    domain.DocumentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertDocumentTx(ctx, tx, doc); err != nil {
		return domain.GeneratedDocument{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GeneratedDocument{}, err
	}

	in, err := e.generationInput(ctx, caseID)
	if err != nil {
		return doc, err
	}
	var batch BatchResult
	e.generateOne(ctx, in, doc, &batch)
	doc, err = e.Repo.GetDocument(ctx, caseID, doc.ID)
	if err != nil {
		return doc, err
	}
	if doc.Status == domain.DocumentCompleted {
		docID := doc.ID
		if _, err := e.Timeline.Append(ctx, timeline.Entry{
			CaseID:            caseID,
			Type:              domain.EventFollowUpGenerated,
			Description:       "Follow-up letter generated",
			RelatedDocumentID: &docID,
		}); err != nil {
			e.logger("gate").Warn("append follow-up event", zap.String("case_id", caseID), zap.Error(err))
		}
	}
	return doc, nil
}
