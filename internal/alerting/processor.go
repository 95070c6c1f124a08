// Package alerting implements the batch decision pipeline: validate,
// score, look up the account owner's policy and persist an alert when
// the final score crosses their threshold.
package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/history"
	"github.com/opensource-finance/kite/internal/metrics"
	"github.com/opensource-finance/kite/internal/repository"
)

// Assessor scores one transaction. Satisfied by scoring.Engine.
type Assessor interface {
	Assess(ctx context.Context, tx *domain.Transaction, hist []*domain.Transaction, profile *domain.UserProfile) *domain.RiskAssessment
}

// BatchInput is a batch submission: the transactions to score plus the
// optional demographic context shared by the batch.
type BatchInput struct {
	Profile *domain.UserProfile       `json:"profile,omitempty"`
	Items   []domain.TransactionInput `json:"items" validate:"required,min=1"`
}

// ItemResult is the per-transaction outcome of a batch.
type ItemResult struct {
	Code       string  `json:"code"`
	AccountRef string  `json:"accountRef"`
	Score      float64 `json:"score"`
	Reason     string  `json:"reason,omitempty"`
	Alerted    bool    `json:"alerted"`
}

// RejectedItem records a batch item that failed validation. Rejection
// never aborts the rest of the batch.
type RejectedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult summarizes a processed batch.
type BatchResult struct {
	Processed     int            `json:"processed"`
	AlertsCreated int            `json:"alertsCreated"`
	Results       []ItemResult   `json:"results"`
	Rejected      []RejectedItem `json:"rejected,omitempty"`
}

// Processor runs batches through the scoring and alert decision path.
type Processor struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   Assessor
	history  *history.Service
	validate *validator.Validate

	workers int
	userTTL time.Duration
	now     func() time.Time
}

// NewProcessor creates a batch processor. cache and bus may be nil.
func NewProcessor(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine Assessor, hist *history.Service, workers int, userTTL time.Duration) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if userTTL <= 0 {
		userTTL = 5 * time.Minute
	}
	return &Processor{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		history:  hist,
		validate: validator.New(),
		workers:  workers,
		userTTL:  userTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type itemOutcome struct {
	index   int
	result  ItemResult
	created bool
}

// ProcessBatch validates, scores and decides every item in the batch.
// Invalid items are rejected individually; scoring failures degrade to
// the neutral fallback inside the engine and never abort the batch.
// Returns ctx.Err together with the partial result if the context is
// cancelled mid-batch.
func (p *Processor) ProcessBatch(ctx context.Context, in *BatchInput) (*BatchResult, error) {
	if err := p.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}

	result := &BatchResult{}

	type pending struct {
		index int
		tx    *domain.Transaction
	}
	var valid []pending
	for i := range in.Items {
		if err := p.validate.Struct(&in.Items[i]); err != nil {
			metrics.ItemsRejected.Inc()
			result.Rejected = append(result.Rejected, RejectedItem{Index: i, Reason: err.Error()})
			continue
		}
		valid = append(valid, pending{index: i, tx: in.Items[i].ToTransaction()})
	}

	jobs := make(chan pending)
	outcomes := make(chan itemOutcome, len(valid))

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- p.processItem(ctx, job.index, job.tx, in.Profile)
			}
		}()
	}

	var cancelled error
dispatch:
	for _, job := range valid {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- job:
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	collected := make([]itemOutcome, 0, len(valid))
	for out := range outcomes {
		collected = append(collected, out)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	for _, out := range collected {
		result.Processed++
		if out.created {
			result.AlertsCreated++
		}
		result.Results = append(result.Results, out.result)
	}

	slog.Info("batch processed",
		"processed", result.Processed,
		"alerts_created", result.AlertsCreated,
		"rejected", len(result.Rejected),
	)

	return result, cancelled
}

// processItem scores one transaction and applies the alert decision.
// A missing owner or disabled notifications ends the path quietly; the
// transaction still counts as processed.
func (p *Processor) processItem(ctx context.Context, index int, tx *domain.Transaction, profile *domain.UserProfile) itemOutcome {
	if tx.Code == "" {
		tx.Code = TransactionCode(tx.AccountRef, tx.Collector, tx.Date)
	}

	hist, err := p.history.Recent(ctx, tx.AccountRef)
	if err != nil {
		slog.Warn("history lookup failed, scoring without context",
			"account_ref", tx.AccountRef,
			"error", err,
		)
		hist = nil
	}

	assessment := p.engine.Assess(ctx, tx, hist, profile)
	metrics.TransactionsProcessed.Inc()

	if err := p.history.Record(ctx, tx); err != nil {
		slog.Warn("failed to record transaction",
			"code", tx.Code,
			"error", err,
		)
	}

	out := itemOutcome{
		index: index,
		result: ItemResult{
			Code:       tx.Code,
			AccountRef: tx.AccountRef,
			Score:      assessment.FinalScore,
			Reason:     assessment.NarrativeReason,
		},
	}

	user := p.lookupUser(ctx, tx.AccountRef)
	if user == nil {
		slog.Debug("no user for account, skipping alert decision", "account_ref", tx.AccountRef)
		return out
	}
	if !user.Notifications {
		slog.Debug("notifications disabled, skipping alert", "account_ref", tx.AccountRef)
		return out
	}

	threshold := user.Tier.Threshold()
	if assessment.FinalScore < threshold {
		return out
	}
	out.result.Alerted = true

	alert := &domain.Alert{
		AccountRef:      tx.AccountRef,
		TransactionCode: tx.Code,
		Amount:          tx.Value,
		Score:           assessment.FinalScore,
		CollectorRef:    tx.Collector,
		CreatedAt:       p.now(),
	}

	if err := p.repo.SaveAlert(ctx, alert); err != nil {
		if errors.Is(err, repository.ErrDuplicateAlert) {
			slog.Debug("alert already exists", "code", tx.Code)
			return out
		}
		slog.Error("failed to save alert",
			"code", tx.Code,
			"error", err,
		)
		return out
	}

	out.created = true
	metrics.AlertsCreated.Inc()
	p.publishAlert(ctx, alert)

	slog.Info("alert created",
		"code", tx.Code,
		"account_ref", tx.AccountRef,
		"score", assessment.FinalScore,
		"threshold", threshold,
	)

	return out
}

// lookupUser resolves the account owner through the cache. Lookup
// failures are treated as "no user": the decision path must never fail
// a batch because the policy store hiccuped.
func (p *Processor) lookupUser(ctx context.Context, accountRef string) *domain.User {
	if p.cache != nil {
		if user, err := p.cache.GetUser(ctx, accountRef); err == nil && user != nil {
			return user
		}
	}

	user, err := p.repo.GetUserByAccountRef(ctx, accountRef)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("user lookup failed", "account_ref", accountRef, "error", err)
		}
		return nil
	}

	if p.cache != nil {
		if err := p.cache.SetUser(ctx, accountRef, user, p.userTTL); err != nil {
			slog.Debug("user cache set failed", "account_ref", accountRef, "error", err)
		}
	}

	return user
}

func (p *Processor) publishAlert(ctx context.Context, alert *domain.Alert) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicAlertCreated, payload); err != nil {
		slog.Warn("failed to publish alert event",
			"code", alert.TransactionCode,
			"error", err,
		)
	}
}
