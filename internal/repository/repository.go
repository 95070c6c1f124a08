// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kite/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateAlert = errors.New("alert already exists for transaction code")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveUser creates a user or, when the account reference is already
// onboarded, refreshes its token and policy in place.
func (r *SQLRepository) SaveUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" || user.AccountRef == "" {
		return fmt.Errorf("%w: user id and accountRef are required", ErrInvalidInput)
	}
	if !user.Tier.Valid() {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, user.Tier)
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (
			id, access_token, valid_until, account_ref, notifications, tier, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_ref) DO UPDATE SET
			access_token = excluded.access_token,
			valid_until = excluded.valid_until,
			notifications = excluded.notifications,
			tier = excluded.tier,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		user.ID, user.AccessToken, user.ValidUntil, user.AccountRef,
		boolToInt(user.Notifications), string(user.Tier),
		user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetUser retrieves a user by ID.
func (r *SQLRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	return r.queryUser(ctx, `WHERE id = ?`, userID)
}

// GetUserByAccountRef retrieves a user by account reference.
func (r *SQLRepository) GetUserByAccountRef(ctx context.Context, accountRef string) (*domain.User, error) {
	if accountRef == "" {
		return nil, fmt.Errorf("%w: accountRef is required", ErrInvalidInput)
	}
	return r.queryUser(ctx, `WHERE account_ref = ?`, accountRef)
}

func (r *SQLRepository) queryUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `
		SELECT id, access_token, valid_until, account_ref, notifications, tier, created_at, updated_at
		FROM users ` + where

	var user domain.User
	var notifications int
	var tier string

	err := r.db.QueryRowContext(ctx, r.rebind(query), arg).Scan(
		&user.ID, &user.AccessToken, &user.ValidUntil, &user.AccountRef,
		&notifications, &tier, &user.CreatedAt, &user.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	user.Notifications = notifications == 1
	user.Tier = domain.RiskTier(tier)

	return &user, nil
}

// UpdateUserPolicy updates the notification flag and risk tier and
// returns the updated record.
func (r *SQLRepository) UpdateUserPolicy(ctx context.Context, userID string, notifications bool, tier domain.RiskTier) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, tier)
	}

	query := `
		UPDATE users
		SET notifications = ?, tier = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		boolToInt(notifications), string(tier), time.Now().UTC(), userID,
	)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return r.GetUser(ctx, userID)
}

// DeactivateUser turns notifications off and expires the access token,
// so the account drops out of every alert decision immediately.
func (r *SQLRepository) DeactivateUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		UPDATE users
		SET notifications = 0, valid_until = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), now, now, userID)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return r.GetUser(ctx, userID)
}

// SaveAlert persists an alert and fills in its database-assigned id.
// Returns ErrDuplicateAlert when the transaction code is already
// alerted; callers treat that as success.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.AccountRef == "" || alert.TransactionCode == "" {
		return fmt.Errorf("%w: accountRef and transactionCode are required", ErrInvalidInput)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alerts (
			account_ref, transaction_code, amount, score, collector_ref, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	args := []any{
		alert.AccountRef, alert.TransactionCode, alert.Amount.String(),
		alert.Score, alert.CollectorRef, alert.CreatedAt,
	}

	if r.driver == "postgres" {
		err := r.db.QueryRowContext(ctx, r.rebind(query+" RETURNING id"), args...).Scan(&alert.ID)
		if r.isUniqueViolation(err) {
			return ErrDuplicateAlert
		}
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if r.isUniqueViolation(err) {
		return ErrDuplicateAlert
	}
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		alert.ID = id
	}
	return nil
}

// ListAlerts retrieves alerts matching the filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	query := `
		SELECT id, account_ref, transaction_code, amount, score, collector_ref, created_at
		FROM alerts
	`
	var conditions []string
	var args []any

	if filter.AccountRef != "" {
		conditions = append(conditions, "account_ref = ?")
		args = append(args, filter.AccountRef)
	}
	if filter.MinScore != nil {
		conditions = append(conditions, "score >= ?")
		args = append(args, *filter.MinScore)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var alert domain.Alert
		var amount string
		var collectorRef sql.NullString

		if err := rows.Scan(
			&alert.ID, &alert.AccountRef, &alert.TransactionCode,
			&amount, &alert.Score, &collectorRef, &alert.CreatedAt,
		); err != nil {
			return nil, err
		}

		alert.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount for alert %d: %w", alert.ID, err)
		}
		alert.CollectorRef = collectorRef.String

		alerts = append(alerts, &alert)
	}

	return alerts, rows.Err()
}

// SaveTransaction stores a scored transaction for history lookups.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.AccountRef == "" {
		return fmt.Errorf("%w: accountRef is required", ErrInvalidInput)
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (
			id, code, account_ref, category, collector, value, date,
			recurring, first_purchase, refunded, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Code, tx.AccountRef, tx.Category, tx.Collector,
		tx.Value.String(), tx.Date,
		boolToInt(tx.Recurring), boolToInt(tx.FirstPurchase), boolToInt(tx.Refunded),
		tx.CreatedAt,
	)
	return err
}

// RecentTransactions retrieves the account's latest transactions by
// calendar date, newest first. Transactions without a date sort last.
func (r *SQLRepository) RecentTransactions(ctx context.Context, accountRef string, limit int) ([]*domain.Transaction, error) {
	if accountRef == "" {
		return nil, fmt.Errorf("%w: accountRef is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, code, account_ref, category, collector, value, date,
			   recurring, first_purchase, refunded, created_at
		FROM transactions
		WHERE account_ref = ?
		ORDER BY date DESC, created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), accountRef, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var code sql.NullString
		var value string
		var recurring, firstPurchase, refunded int

		if err := rows.Scan(
			&tx.ID, &code, &tx.AccountRef, &tx.Category, &tx.Collector,
			&value, &tx.Date,
			&recurring, &firstPurchase, &refunded,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.Code = code.String
		tx.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("corrupt value for transaction %s: %w", tx.ID, err)
		}
		tx.Recurring = recurring == 1
		tx.FirstPurchase = firstPurchase == 1
		tx.Refunded = refunded == 1

		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// isUniqueViolation recognizes unique-constraint errors from both
// drivers.
func (r *SQLRepository) isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
