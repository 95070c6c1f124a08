package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/history"
	"github.com/opensource-finance/kite/internal/repository"
)

type fakeRepo struct {
	domain.Repository

	mu     sync.Mutex
	users  map[string]*domain.User
	alerts []*domain.Alert
	codes  map[string]bool
	txs    map[string][]*domain.Transaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users: make(map[string]*domain.User),
		codes: make(map[string]bool),
		txs:   make(map[string][]*domain.Transaction),
	}
}

func (r *fakeRepo) GetUserByAccountRef(ctx context.Context, accountRef string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[accountRef]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *fakeRepo) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codes[alert.TransactionCode] {
		return repository.ErrDuplicateAlert
	}
	r.codes[alert.TransactionCode] = true
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *fakeRepo) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.AccountRef] = append(r.txs[tx.AccountRef], tx)
	return nil
}

func (r *fakeRepo) RecentTransactions(ctx context.Context, accountRef string, limit int) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txs := r.txs[accountRef]
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (r *fakeRepo) alertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type fakeBus struct {
	domain.EventBus

	mu        sync.Mutex
	published []string
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, topic)
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// stubAssessor maps collector name to a fixed final score.
type stubAssessor struct {
	scores map[string]float64
}

func (s stubAssessor) Assess(ctx context.Context, tx *domain.Transaction, hist []*domain.Transaction, profile *domain.UserProfile) *domain.RiskAssessment {
	score := s.scores[tx.Collector]
	return &domain.RiskAssessment{
		NumericScore:    score,
		NarrativeScore:  score,
		NarrativeReason: "test reason",
		FinalScore:      score,
	}
}

func newTestProcessor(repo *fakeRepo, bus domain.EventBus, scores map[string]float64) *Processor {
	hist := history.NewService(repo, nil, 10)
	return NewProcessor(repo, nil, bus, stubAssessor{scores: scores}, hist, 2, time.Minute)
}

func addUser(repo *fakeRepo, accountRef string, notifications bool, tier domain.RiskTier) {
	repo.users[accountRef] = &domain.User{
		ID:            "user-" + accountRef,
		AccountRef:    accountRef,
		Notifications: notifications,
		Tier:          tier,
		ValidUntil:    time.Now().Add(time.Hour),
	}
}

func item(accountRef, collector string) domain.TransactionInput {
	return domain.TransactionInput{
		AccountRef: accountRef,
		Category:   "subscription",
		Collector:  collector,
		Value:      decimal.NewFromFloat(9.99),
		Date:       "2025-06-01",
	}
}

func TestProcessBatchAlertsAboveThreshold(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", true, domain.TierMedium)
	p := newTestProcessor(repo, nil, map[string]float64{
		"netflix": 0.80,
		"gym":     0.60,
		"spotify": 0.71,
	})

	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{
			item("ES01", "netflix"),
			item("ES01", "gym"),
			item("ES01", "spotify"),
		},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if res.Processed != 3 {
		t.Errorf("processed = %d, want 3", res.Processed)
	}
	if res.AlertsCreated != 2 {
		t.Errorf("alertsCreated = %d, want 2", res.AlertsCreated)
	}
	if len(res.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(res.Results))
	}
	wantAlerted := []bool{true, false, true}
	for i, r := range res.Results {
		if r.Alerted != wantAlerted[i] {
			t.Errorf("results[%d].Alerted = %v, want %v (score %v)", i, r.Alerted, wantAlerted[i], r.Score)
		}
	}
	if repo.alertCount() != 2 {
		t.Errorf("persisted alerts = %d, want 2", repo.alertCount())
	}
}

func TestProcessBatchThresholdInclusive(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", true, domain.TierLow)
	p := newTestProcessor(repo, nil, map[string]float64{
		"exact": 0.50,
		"under": 0.499,
	})

	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{
			item("ES01", "exact"),
			item("ES01", "under"),
		},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if !res.Results[0].Alerted {
		t.Error("score equal to threshold must alert")
	}
	if res.Results[1].Alerted {
		t.Error("score below threshold must not alert")
	}
	if res.AlertsCreated != 1 {
		t.Errorf("alertsCreated = %d, want 1", res.AlertsCreated)
	}
}

func TestProcessBatchUnsetTierUsesMediumCutoff(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", true, domain.TierUnset)
	p := newTestProcessor(repo, nil, map[string]float64{
		"above": 0.75,
		"below": 0.65,
	})

	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{
			item("ES01", "above"),
			item("ES01", "below"),
		},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.AlertsCreated != 1 {
		t.Errorf("alertsCreated = %d, want 1", res.AlertsCreated)
	}
}

func TestProcessBatchNotificationsOff(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", false, domain.TierLow)
	p := newTestProcessor(repo, nil, map[string]float64{"netflix": 0.99})

	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{item("ES01", "netflix")},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1", res.Processed)
	}
	if res.AlertsCreated != 0 {
		t.Errorf("alertsCreated = %d, want 0", res.AlertsCreated)
	}
	if repo.alertCount() != 0 {
		t.Errorf("persisted alerts = %d, want 0", repo.alertCount())
	}
}

func TestProcessBatchUnknownAccount(t *testing.T) {
	repo := newFakeRepo()
	p := newTestProcessor(repo, nil, map[string]float64{"netflix": 0.99})

	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{item("ES99", "netflix")},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1", res.Processed)
	}
	if res.AlertsCreated != 0 {
		t.Errorf("alertsCreated = %d, want 0", res.AlertsCreated)
	}
}

func TestProcessBatchIdempotentResubmission(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", true, domain.TierLow)
	p := newTestProcessor(repo, nil, map[string]float64{"netflix": 0.95})

	in := &BatchInput{Items: []domain.TransactionInput{item("ES01", "netflix")}}

	first, err := p.ProcessBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	second, err := p.ProcessBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}

	if first.AlertsCreated != 1 {
		t.Errorf("first alertsCreated = %d, want 1", first.AlertsCreated)
	}
	if second.AlertsCreated != 0 {
		t.Errorf("second alertsCreated = %d, want 0", second.AlertsCreated)
	}
	if !second.Results[0].Alerted {
		t.Error("resubmitted item should still report the alert decision")
	}
	if repo.alertCount() != 1 {
		t.Errorf("persisted alerts = %d, want 1", repo.alertCount())
	}
}

func TestProcessBatchRejectsInvalidItems(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", true, domain.TierLow)
	p := newTestProcessor(repo, nil, map[string]float64{"netflix": 0.2})

	bad := item("ES01", "netflix")
	bad.Category = ""

	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{bad, item("ES01", "netflix")},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if len(res.Rejected) != 1 || res.Rejected[0].Index != 0 {
		t.Fatalf("rejected = %+v, want index 0", res.Rejected)
	}
	if res.Processed != 1 {
		t.Errorf("processed = %d, want 1", res.Processed)
	}
}

func TestProcessBatchRejectsEmptyBatch(t *testing.T) {
	p := newTestProcessor(newFakeRepo(), nil, nil)

	_, err := p.ProcessBatch(context.Background(), &BatchInput{})
	if !errors.Is(err, repository.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessBatchDerivesStableCode(t *testing.T) {
	repo := newFakeRepo()
	p := newTestProcessor(repo, nil, map[string]float64{"netflix": 0.1})

	in := item("ES01", "netflix")
	res, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{in},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	want := TransactionCode(in.AccountRef, in.Collector, in.Date)
	if res.Results[0].Code != want {
		t.Errorf("derived code = %q, want %q", res.Results[0].Code, want)
	}
}

func TestProcessBatchPublishesAlertEvents(t *testing.T) {
	repo := newFakeRepo()
	addUser(repo, "ES01", true, domain.TierLow)
	bus := &fakeBus{}
	p := newTestProcessor(repo, bus, map[string]float64{
		"netflix": 0.9,
		"gym":     0.1,
	})

	_, err := p.ProcessBatch(context.Background(), &BatchInput{
		Items: []domain.TransactionInput{
			item("ES01", "netflix"),
			item("ES01", "gym"),
		},
	})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if bus.count() != 1 {
		t.Errorf("published events = %d, want 1", bus.count())
	}
}
