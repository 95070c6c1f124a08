package llmscore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/metrics"
	"github.com/opensource-finance/kite/internal/retry"
)

// Scorer queries the text-generation backend with a rendered prompt and
// parses the reply into a probability plus a short justification.
type Scorer struct {
	client       *Client
	maxAttempts  int
	baseDelay    time.Duration
	historyLimit int
}

// New creates a narrative scorer from the scoring configuration.
func New(cfg domain.ScoringConfig) *Scorer {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Scorer{
		client:       NewClient(cfg.BackendURL, cfg.BackendModel, cfg.AttemptTimeout),
		maxAttempts:  maxAttempts,
		baseDelay:    time.Second,
		historyLimit: historyLimit,
	}
}

// Score renders the prompt and queries the backend. An unparseable
// reply counts as a failed attempt and the same request is re-issued,
// up to the configured ceiling. Sustained failure yields Unavailable;
// the scoring engine substitutes the documented fallback pair.
func (s *Scorer) Score(ctx context.Context, tx *domain.Transaction, history []*domain.Transaction, profile *domain.UserProfile) domain.ScoreResult {
	prompt := buildPrompt(tx, history, profile, s.historyLimit)

	var (
		score   float64
		reason  string
		attempt int
	)

	err := retry.Do(ctx, s.maxAttempts, s.baseDelay, func() error {
		attempt++
		if attempt > 1 {
			metrics.BackendRetries.Inc()
		}

		start := time.Now()
		reply, err := s.client.Generate(ctx, prompt)
		metrics.BackendDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			var be *BackendError
			if errors.As(err, &be) && be.Permanent() {
				return retry.Permanent(err)
			}
			return err
		}

		parsed, parsedReason, err := parseReply(reply)
		if err != nil {
			slog.Debug("backend reply had no parseable score",
				"attempt", attempt,
				"reply_len", len(reply),
			)
			return err
		}

		score, reason = parsed, parsedReason
		return nil
	})

	if err != nil {
		slog.Warn("narrative scorer unavailable",
			"attempts", attempt,
			"error", err,
		)
		return domain.Unavailable(err.Error())
	}

	return domain.Scored(clamp01(score), reason)
}
