package repository

// Schema definitions for the Kite database.
// Compatible with both SQLite and PostgreSQL except where noted.

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    valid_until TIMESTAMP NOT NULL,
    account_ref TEXT NOT NULL UNIQUE,
    notifications INTEGER NOT NULL DEFAULT 1,
    tier TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_account_ref ON users(account_ref);
`

// Alerts use a database-assigned numeric id, so the primary key clause
// differs per driver. transaction_code carries the UNIQUE constraint
// that makes alert writes idempotent.
const schemaAlertsSQLite = `
CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_ref TEXT NOT NULL,
    transaction_code TEXT NOT NULL UNIQUE,
    amount TEXT NOT NULL,
    score REAL NOT NULL,
    collector_ref TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_account_ref ON alerts(account_ref);
CREATE INDEX IF NOT EXISTS idx_alerts_score ON alerts(score);
`

const schemaAlertsPostgres = `
CREATE TABLE IF NOT EXISTS alerts (
    id BIGSERIAL PRIMARY KEY,
    account_ref TEXT NOT NULL,
    transaction_code TEXT NOT NULL UNIQUE,
    amount TEXT NOT NULL,
    score REAL NOT NULL,
    collector_ref TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_account_ref ON alerts(account_ref);
CREATE INDEX IF NOT EXISTS idx_alerts_score ON alerts(score);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    code TEXT,
    account_ref TEXT NOT NULL,
    category TEXT NOT NULL,
    collector TEXT NOT NULL,
    value TEXT NOT NULL,
    date TEXT NOT NULL DEFAULT '',
    recurring INTEGER NOT NULL DEFAULT 0,
    first_purchase INTEGER NOT NULL DEFAULT 0,
    refunded INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_ref ON transactions(account_ref);
CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions(account_ref, date);
`

// AllSchemas returns all schema statements for the driver, in order.
func AllSchemas(driver string) []string {
	alerts := schemaAlertsSQLite
	if driver == "postgres" {
		alerts = schemaAlertsPostgres
	}
	return []string{
		schemaUsers,
		alerts,
		schemaTransactions,
	}
}
