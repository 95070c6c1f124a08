// Package history maintains the per-account transaction trail that
// gives the narrative scorer its context.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

const cacheTTL = 2 * time.Minute

// Service reads and records account transaction history. Reads go
// through the cache; every write invalidates the account's entry so a
// batch sees its own earlier items on the next lookup.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	limit int
}

// NewService creates a history service returning up to limit
// transactions per account. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache, limit int) *Service {
	if limit <= 0 {
		limit = 10
	}
	return &Service{
		repo:  repo,
		cache: cache,
		limit: limit,
	}
}

// Recent returns the account's most recent transactions, newest first
// by calendar date.
func (s *Service) Recent(ctx context.Context, accountRef string) ([]*domain.Transaction, error) {
	if accountRef == "" {
		return nil, fmt.Errorf("accountRef is required")
	}

	key := cacheKey(accountRef)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
			var txs []*domain.Transaction
			if err := json.Unmarshal(data, &txs); err == nil {
				return txs, nil
			}
		}
	}

	txs, err := s.repo.RecentTransactions(ctx, accountRef, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(txs); err == nil {
			if err := s.cache.Set(ctx, key, data, cacheTTL); err != nil {
				slog.Debug("history cache set failed", "account_ref", accountRef, "error", err)
			}
		}
	}

	return txs, nil
}

// Record persists a scored transaction and invalidates the account's
// cached history.
func (s *Service) Record(ctx context.Context, tx *domain.Transaction) error {
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey(tx.AccountRef)); err != nil {
			slog.Debug("history cache invalidation failed", "account_ref", tx.AccountRef, "error", err)
		}
	}

	return nil
}

func cacheKey(accountRef string) string {
	return "kite:history:" + accountRef
}
