package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/txnhook/pkg/logger"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id      VARCHAR(128) PRIMARY KEY,
		source_account      VARCHAR(128) NOT NULL,
		destination_account VARCHAR(128) NOT NULL,
		amount              NUMERIC NOT NULL CHECK (amount > 0),
		currency            CHAR(3) NOT NULL,
		status              VARCHAR(16) NOT NULL DEFAULT 'PROCESSING'
			CHECK (status IN ('PROCESSING', 'PROCESSED', 'FAILED')),
		attempts            INTEGER NOT NULL DEFAULT 0,
		failure_reason      TEXT,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		enqueued_at         TIMESTAMPTZ,
		processed_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_stranded
		ON transactions (created_at)
		WHERE status = 'PROCESSING' AND enqueued_at IS NULL`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id      TEXT PRIMARY KEY,
		source_account      TEXT NOT NULL,
		destination_account TEXT NOT NULL,
		amount              TEXT NOT NULL,
		currency            TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'PROCESSING'
			CHECK (status IN ('PROCESSING', 'PROCESSED', 'FAILED')),
		attempts            INTEGER NOT NULL DEFAULT 0,
		failure_reason      TEXT,
		created_at          DATETIME NOT NULL,
		updated_at          DATETIME NOT NULL,
		enqueued_at         DATETIME,
		processed_at        DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_stranded
		ON transactions (created_at)
		WHERE status = 'PROCESSING' AND enqueued_at IS NULL`,
}

// Migrate creates the transactions table for the connected driver. It is
// safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var statements []string
	switch db.DriverName() {
	case DriverPostgres:
		statements = postgresSchema
	case DriverSQLite:
		statements = sqliteSchema
	default:
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	logger.Info("Database schema up to date",
		logger.String("driver", db.DriverName()),
	)
	return nil
}
