package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"disputehub/internal/domain"
	"disputehub/internal/policy"
	"disputehub/internal/sufficiency"
)

// Turn actions for the conversational agent's candidate response.
const (
	ActionSurface    = "surface"
	ActionRegenerate = "regenerate"
)

// TurnInput is one conversational turn: the extracted strategy delta and the
// response the agent wants to show.
type TurnInput struct {
	Delta    *domain.StrategyDelta `json:"delta,omitempty"`
	Response string                `json:"response"`
}

type TurnResult struct {
	Action         string                     `json:"action" enum:"surface,regenerate"`
	Verdict        sufficiency.Verdict        `json:"verdict"`
	Sufficiency    sufficiency.ScoreResult    `json:"sufficiency"`
	Classification sufficiency.Classification `json:"classification"`
	Completeness   policy.Report              `json:"completeness"`
	Strategy       domain.Strategy            `json:"strategy"`
	Case           domain.Case                `json:"case"`
	Gate           *GateResult                `json:"gate,omitempty"`
}

// ProcessTurn applies the turn's delta, checks the candidate response,
// scores and classifies the case, and runs the gate when it should trigger.
// A delta on a locked case is refused with ErrStrategyLocked.
func (e Engine) ProcessTurn(ctx context.Context, caseID string, in TurnInput) (TurnResult, error) {
	log := e.logger("turn").With(zap.String("case_id", caseID))
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return TurnResult{}, err
	}
	if c.LifecycleStatus == domain.LifecycleClosed {
		return TurnResult{}, ErrCaseClosed
	}
	var s domain.Strategy
	if deltaEmpty(in.Delta) {
		s, err = e.GetStrategy(ctx, caseID)
	} else {
		s, err = e.ApplyStrategyDelta(ctx, caseID, *in.Delta)
	}
	if err != nil {
		return TurnResult{}, err
	}
	evidenceCount, err := e.Repo.CountEvidence(ctx, caseID)
	if err != nil {
		return TurnResult{}, err
	}

	res := TurnResult{Strategy: s}
	res.Verdict = e.Sufficiency.CheckResponse(in.Response, sufficiency.TurnContext{
		EvidenceCount: evidenceCount,
		FactCount:     policy.CountNonBlank(s.KeyFacts),
	})
	for _, v := range res.Verdict.Violations {
		e.Metrics.Violation(v.Kind)
	}
	res.Action = ActionSurface
	if !res.Verdict.Allowed {
		res.Action = ActionRegenerate
		log.Info("response blocked", zap.Int("violations", len(res.Verdict.Violations)))
	}
	res.Sufficiency = e.Sufficiency.Score(&s, evidenceCount)
	res.Completeness = e.completeness().Evaluate(&s)
	res.Classification = e.Sufficiency.Classify(sufficiency.ClassifyInput{
		Strategy:      &s,
		EvidenceCount: evidenceCount,
		Restricted:    c.Restricted,
		Locked:        c.StrategyLocked,
	})

	// A blocked turn never locks: the regenerated turn carries the gate.
	if tc := e.triggerCheck(c, &s); tc.ShouldTrigger && res.Verdict.Allowed {
		gate, err := e.Execute(ctx, caseID)
		if err != nil {
			return res, err
		}
		res.Gate = &gate
		if gate.Executed || gate.Reason == ReasonLocked {
			res.Classification.State = domain.ChatStateBlocked
		}
	}

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetChatState(ctx, caseID, res.Classification.State, now); err != nil {
		return res, err
	}
	e.Metrics.Turn(res.Classification.State)
	if res.Case, err = e.Repo.GetCase(ctx, caseID); err != nil {
		return res, err
	}
	return res, nil
}
