package llmscore

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/shopspring/decimal"
)

func histTx(category, date string, value float64) *domain.Transaction {
	return &domain.Transaction{
		Category:  category,
		Collector: "acme",
		Value:     decimal.NewFromFloat(value),
		Date:      date,
	}
}

func TestHistoryDigestOrdering(t *testing.T) {
	history := []*domain.Transaction{
		histTx("groceries", "2025-01-10", 20),
		histTx("undated", "", 5),
		histTx("streaming", "2025-03-01", 12.99),
		histTx("gym", "2025-02-15", 35),
	}

	digest := historyDigest(history, 10)
	lines := strings.Split(digest, "\n")

	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), digest)
	}
	if !strings.Contains(lines[0], "streaming") {
		t.Errorf("expected newest first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "gym") {
		t.Errorf("expected gym second, got %q", lines[1])
	}
	if !strings.Contains(lines[3], "undated") {
		t.Errorf("expected missing date last, got %q", lines[3])
	}
}

func TestHistoryDigestStableTies(t *testing.T) {
	history := []*domain.Transaction{
		histTx("first", "2025-01-01", 1),
		histTx("second", "2025-01-01", 2),
		histTx("third", "2025-01-01", 3),
	}

	lines := strings.Split(historyDigest(history, 10), "\n")
	for i, want := range []string{"first", "second", "third"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want to contain %q (ties keep original order)", i, lines[i], want)
		}
	}
}

func TestHistoryDigestLimit(t *testing.T) {
	var history []*domain.Transaction
	for i := 0; i < 15; i++ {
		history = append(history, histTx("cat", "2025-01-10", 1))
	}

	lines := strings.Split(historyDigest(history, 10), "\n")
	if len(lines) != 10 {
		t.Errorf("expected 10 lines, got %d", len(lines))
	}
}

func TestHistoryDigestEmpty(t *testing.T) {
	if got := historyDigest(nil, 10); got != "No recent history" {
		t.Errorf("unexpected empty digest: %q", got)
	}
}

func TestBuildPromptEmbedsContext(t *testing.T) {
	tx := &domain.Transaction{
		AccountRef: "ES0112340001",
		Category:   "crypto",
		Collector:  "coinbase",
		Value:      decimal.NewFromFloat(250),
		Date:       "2025-06-01",
	}
	profile := &domain.UserProfile{Age: 34, Salary: 42000, Urban: true}
	history := []*domain.Transaction{histTx("groceries", "2025-05-20", 60)}

	prompt := buildPrompt(tx, history, profile, 10)

	for _, want := range []string{
		"34 years old",
		"salary: 42000",
		"area: urban",
		"Transaction history: 1 operations",
		"groceries",
		`"collector": "coinbase"`,
		"[<number>]: <reason>",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptNilProfile(t *testing.T) {
	tx := histTx("crypto", "2025-06-01", 250)
	prompt := buildPrompt(tx, nil, nil, 10)
	if !strings.Contains(prompt, "area: rural") {
		t.Error("nil profile should default to rural area")
	}
	if !strings.Contains(prompt, "No recent history") {
		t.Error("nil history should render the empty digest")
	}
}
