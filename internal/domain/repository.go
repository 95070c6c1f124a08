package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// User operations
	SaveUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByAccountRef(ctx context.Context, accountRef string) (*User, error)
	UpdateUserPolicy(ctx context.Context, userID string, notifications bool, tier RiskTier) (*User, error)
	DeactivateUser(ctx context.Context, userID string) (*User, error)

	// Alert operations. SaveAlert returns ErrDuplicateAlert when an
	// alert with the same transaction code already exists.
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)

	// Transaction history operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	RecentTransactions(ctx context.Context, accountRef string, limit int) ([]*Transaction, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
