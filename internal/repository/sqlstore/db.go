package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alfanzaky/txnhook/pkg/logger"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds connection settings for Open
type Config struct {
	Driver  string
	DSN     string
	MaxIdle int
	MaxOpen int
	MaxLife time.Duration
}

// Open connects to the configured database and applies pool settings
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// One writer; an in-memory database also lives on a single connection.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpen > 0 {
			db.SetMaxOpenConns(cfg.MaxOpen)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	if cfg.MaxLife > 0 {
		db.SetConnMaxLifetime(cfg.MaxLife)
	}

	logger.Info("Database connection established",
		logger.String("driver", cfg.Driver),
	)
	return db, nil
}
