package llmscore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/kite/internal/domain"
)

// promptTemplate is the fixed instruction set sent to the backend.
// Output rules are strict because the parser depends on them; the
// rubric and examples keep small models inside the [0,1] scale.
const promptTemplate = `You are a specialized fraud-detection and financial risk assessment system.
Follow these output rules strictly:

Single output: reply with exactly one line and nothing else.

Exact format: [<number>]: <reason>

Range: <number> must be between 0.00 and 1.00 with exactly 2 decimals.

Mandatory normalization: if any internal reasoning yields a value above 1
or on another scale (e.g. 3, 35%%, 8/10), normalize to [0,1] before writing
it (3 -> 0.30; 35%% -> 0.35; 8/10 -> 0.80) and round to 2 decimals. Never
write a number outside [0.00, 1.00].

Short explanation: <reason> must be a single brief sentence (max 20 words)
referencing the relevant patterns.

Do not add greetings, labels, lists, JSON or any extra text.

Risk patterns to weigh in context:
- Purchases in high-risk categories (gambling, crypto...).
- First purchases at unknown merchants.
- Patterns inconsistent with historical behaviour.
- Suspicious recurring charges, or re-billing of old subscriptions.
- Sharp increases in recurring payments versus history.

Input
CUSTOMER CONTEXT:
Profile: %d years old, salary: %.0f, area: %s
Transaction history: %d operations

RECENT CUSTOMER HISTORY (latest transactions):
%s

CURRENT TRANSACTION TO ASSESS:
%s

Instruction
Assess the current transaction against the history and return only the
line in the required format.

Examples:
[0.82]: First payment to a crypto merchant far above the recent history.
[0.06]: Known recurring charge, consistent amount and cadence.
[0.71]: Re-billing of an inactive subscription with an amount increase.

Remember: one single line, number always between 0.00 and 1.00.`

// historyDigest formats the most recent transactions, newest first.
// Sorting is stable so ties keep their original order; transactions
// with no date sort last.
func historyDigest(history []*domain.Transaction, limit int) string {
	if len(history) == 0 {
		return "No recent history"
	}

	sorted := make([]*domain.Transaction, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date > sorted[j].Date
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	var b strings.Builder
	for i, tx := range sorted {
		fmt.Fprintf(&b, "%d. %s - %s - %s - recurring: %t - refunded: %t\n",
			i+1,
			orNA(tx.Category),
			tx.Value.StringFixed(2),
			orNA(tx.Collector),
			tx.Recurring,
			tx.Refunded,
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// buildPrompt renders the full prompt for one transaction.
func buildPrompt(tx *domain.Transaction, history []*domain.Transaction, profile *domain.UserProfile, historyLimit int) string {
	age := 0
	salary := 0.0
	area := "rural"
	if profile != nil {
		age = profile.Age
		salary = profile.Salary
		if profile.Urban {
			area = "urban"
		}
	}

	current, err := json.MarshalIndent(map[string]any{
		"value":          tx.Value,
		"category":       tx.Category,
		"collector":      tx.Collector,
		"date":           tx.Date,
		"recurring":      tx.Recurring,
		"first_purchase": tx.FirstPurchase,
		"refunded":       tx.Refunded,
	}, "", "  ")
	if err != nil {
		current = []byte("{}")
	}

	return fmt.Sprintf(promptTemplate,
		age,
		salary,
		area,
		len(history),
		historyDigest(history, historyLimit),
		string(current),
	)
}
