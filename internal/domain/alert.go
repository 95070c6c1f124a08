package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert is an append-only record of a transaction that crossed the
// owning user's threshold. At most one Alert exists per transaction
// code; reprocessing the same code never creates a second row.
type Alert struct {
	ID              int64           `json:"id"`
	AccountRef      string          `json:"accountRef"`
	TransactionCode string          `json:"transactionCode"`
	Amount          decimal.Decimal `json:"amount"`

	// Score is the combined final score that triggered the alert,
	// not the user's configured cutoff.
	Score float64 `json:"score"`

	CollectorRef string    `json:"collectorRef,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	AccountRef string
	MinScore   *float64
	Limit      int
}
