// Package qualify implements the Qualification Engine (C4): a two-stage
// filter (deterministic keyword gate, then LLM adjudication) that decides
// whether a Message merits attachment processing, writing the outcome
// exactly once via graph.Repository.SetQualification.
package qualify

import (
	"context"
	"fmt"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/llm"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// GraphStore is the subset of graph.Repository the engine needs, narrowed
// to ease testing with a fake.
type GraphStore interface {
	SetQualification(ctx context.Context, messageID string, qualified bool, stage graph.QualificationStage, confidence float64, reason string) error
}

// Engine runs the two-stage qualification decision for one Message at a
// time; it holds no per-message state, so one Engine is shared across
// workers.
type Engine struct {
	store    GraphStore
	provider llm.Provider
	budget   *llm.Budget
	breaker  *llm.CircuitBreaker
	logger   logging.Logger
}

// NewEngine builds a qualification Engine. provider/budget/breaker may be
// nil only if every Message is expected to resolve at Stage 1; a message
// that falls through to Stage 2 with a nil provider returns an error.
func NewEngine(store GraphStore, provider llm.Provider, budget *llm.Budget, breaker *llm.CircuitBreaker, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{store: store, provider: provider, budget: budget, breaker: breaker, logger: logger.With(logging.F("component", "qualify"))}
}

// Qualify runs Stage 1 and, if inconclusive, Stage 2, then writes the
// outcome via SetQualification and reports whether the Message qualified so
// the caller can decide whether to enqueue attachment extraction. A
// cost-cap or circuit-breaker trip during Stage 2 returns a
// *mgerrors.PipelineError with ErrRateLimited or ErrCostCapExceeded so the
// caller's job queue can reschedule with backoff per spec.md §4.7, rather
// than dropping the message.
func (e *Engine) Qualify(ctx context.Context, userID, messageID, subject, body string) (bool, error) {
	outcome := RunStage1(subject, body)

	if !outcome.Conclusive {
		var err error
		outcome, err = e.runStage2(ctx, userID, subject, body)
		if err != nil {
			return false, err
		}
	}

	if err := e.store.SetQualification(ctx, messageID, outcome.Qualified, graph.QualificationStage(outcome.Stage), outcome.Confidence, outcome.Reason); err != nil {
		return false, mgerrors.ClassifyError(err, "qualify.persist")
	}
	return outcome.Qualified, nil
}

func (e *Engine) runStage2(ctx context.Context, userID, subject, body string) (Stage1Outcome, error) {
	if e.provider == nil {
		return Stage1Outcome{}, mgerrors.ClassifyError(fmt.Errorf("llm permanent: stage 2 requires an llm provider"), "qualify.stage2")
	}
	if e.breaker != nil && !e.breaker.Allow() {
		return Stage1Outcome{}, mgerrors.ClassifyError(fmt.Errorf("rate limit: llm circuit breaker open"), "qualify.stage2")
	}
	if e.budget != nil && !e.budget.AllowCall(userID) {
		return Stage1Outcome{}, mgerrors.ClassifyError(fmt.Errorf("rate limit: llm per-minute cap reached"), "qualify.stage2")
	}

	outcome, err := runStage2(ctx, e.provider, subject, body)
	if err != nil {
		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		return Stage1Outcome{}, mgerrors.ClassifyError(err, "qualify.stage2")
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}
	return outcome, nil
}
