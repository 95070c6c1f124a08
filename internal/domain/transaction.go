// Package domain defines the core interfaces and types for Kite.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single charge to be scored.
// Immutable once handed to the scoring pipeline.
type Transaction struct {
	// Core identifiers
	ID string `json:"id"`

	// Code is the caller- or system-assigned transaction code.
	// It is the natural key for alert idempotency.
	Code string `json:"code,omitempty"`

	// AccountRef is the anonymized account reference of the payer.
	AccountRef string `json:"accountRef"`

	// Classification fields
	Category  string `json:"category"`
	Collector string `json:"collector"`

	// Financial details
	Value decimal.Decimal `json:"value"`

	// Date is the transaction calendar date as YYYY-MM-DD.
	// May be empty for malformed upstream records.
	Date string `json:"date"`

	// Behavioural flags
	Recurring     bool `json:"recurring"`
	FirstPurchase bool `json:"firstPurchase"`
	Refunded      bool `json:"refunded"`

	CreatedAt time.Time `json:"createdAt"`
}

// UserProfile is the read-only demographic context for narrative scoring.
// It travels with the batch submission and is never persisted by Kite.
type UserProfile struct {
	Age    int     `json:"age"`
	Salary float64 `json:"salary"`
	Urban  bool    `json:"urban"`
}

// TransactionInput is the API payload for one transaction in a batch.
type TransactionInput struct {
	AccountRef    string          `json:"accountRef" validate:"required"`
	Category      string          `json:"category" validate:"required"`
	Collector     string          `json:"collector" validate:"required"`
	Value         decimal.Decimal `json:"value"`
	Date          string          `json:"date" validate:"required"`
	Recurring     bool            `json:"recurring"`
	FirstPurchase bool            `json:"firstPurchase"`
	Refunded      bool            `json:"refunded"`
	Code          string          `json:"code,omitempty"`
}

// ToTransaction converts an input to a Transaction domain object.
func (in *TransactionInput) ToTransaction() *Transaction {
	return &Transaction{
		Code:          in.Code,
		AccountRef:    in.AccountRef,
		Category:      in.Category,
		Collector:     in.Collector,
		Value:         in.Value,
		Date:          in.Date,
		Recurring:     in.Recurring,
		FirstPurchase: in.FirstPurchase,
		Refunded:      in.Refunded,
		CreatedAt:     time.Now().UTC(),
	}
}
