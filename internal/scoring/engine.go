package scoring

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/metrics"
)

// Fallback values substituted when a provider is unavailable. The
// substitution happens here, in one visible place, so the policy stays
// explicit and testable instead of hiding in provider error handlers.
const (
	FallbackScore  = 0.5
	FallbackReason = "evaluation error"
)

// NumericScorer is the structured-feature classifier provider.
type NumericScorer interface {
	Score(ctx context.Context, tx *domain.Transaction) domain.ScoreResult
}

// NarrativeScorer is the free-text generative provider.
type NarrativeScorer interface {
	Score(ctx context.Context, tx *domain.Transaction, history []*domain.Transaction, profile *domain.UserProfile) domain.ScoreResult
}

// Engine runs both providers for a transaction and combines their
// estimates into one final probability.
type Engine struct {
	numeric   NumericScorer
	narrative NarrativeScorer
}

// NewEngine creates a scoring engine over the two providers.
func NewEngine(numeric NumericScorer, narrative NarrativeScorer) *Engine {
	return &Engine{
		numeric:   numeric,
		narrative: narrative,
	}
}

// Assess scores one transaction. The two providers share no mutable
// state and run concurrently; the narrative call is the slow one.
// Provider unavailability degrades to the neutral fallback and never
// surfaces as an error.
func (e *Engine) Assess(ctx context.Context, tx *domain.Transaction, history []*domain.Transaction, profile *domain.UserProfile) *domain.RiskAssessment {
	numericCh := make(chan domain.ScoreResult, 1)
	go func() {
		numericCh <- e.numeric.Score(ctx, tx)
	}()

	narrative := e.narrative.Score(ctx, tx, history, profile)
	numeric := <-numericCh

	assessment := &domain.RiskAssessment{}

	if numeric.Unavailable {
		metrics.ScorerFallbacks.WithLabelValues("numeric").Inc()
		slog.Warn("numeric provider unavailable, using fallback",
			"account_ref", tx.AccountRef,
			"cause", numeric.Cause,
		)
		assessment.NumericScore = FallbackScore
	} else {
		assessment.NumericScore = Clamp01(numeric.Score)
	}

	if narrative.Unavailable {
		metrics.ScorerFallbacks.WithLabelValues("narrative").Inc()
		slog.Warn("narrative provider unavailable, using fallback",
			"account_ref", tx.AccountRef,
			"cause", narrative.Cause,
		)
		assessment.NarrativeScore = FallbackScore
		assessment.NarrativeReason = FallbackReason
	} else {
		assessment.NarrativeScore = Clamp01(narrative.Score)
		assessment.NarrativeReason = narrative.Reason
	}

	assessment.FinalScore = Combine(assessment.NumericScore, assessment.NarrativeScore)
	return assessment
}
