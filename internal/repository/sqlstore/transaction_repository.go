package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/metrics"
)

const transactionColumns = `transaction_id, source_account, destination_account,
	amount, currency, status, attempts, failure_reason,
	created_at, updated_at, enqueued_at, processed_at`

type transactionRepository struct {
	db *sqlx.DB
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)

// NewTransactionRepository creates a new SQL transaction repository. The
// same queries run on PostgreSQL and SQLite; placeholders are rebound per driver.
func NewTransactionRepository(db *sqlx.DB) *transactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, "transactions", time.Since(start).Seconds())
}

func storeError(operation string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, operation, err)
}

// CreateIfAbsent inserts the transaction unless its id already exists. The
// primary key is the idempotency guard: concurrent inserts of the same id
// resolve inside the database and exactly one reports CreateInserted.
func (r *transactionRepository) CreateIfAbsent(ctx context.Context, txn *domain.Transaction) (domain.CreateResult, error) {
	defer r.observe("create_if_absent", time.Now())

	query := r.db.Rebind(`
		INSERT INTO transactions (transaction_id, source_account, destination_account,
			amount, currency, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING
	`)

	res, err := r.db.ExecContext(ctx, query,
		txn.TransactionID, txn.SourceAccount, txn.DestinationAccount,
		txn.Amount, txn.Currency, txn.Status, txn.Attempts,
		txn.CreatedAt.UTC(), txn.UpdatedAt.UTC(),
	)
	if err != nil {
		logger.Error("Failed to insert transaction",
			logger.TransactionID(txn.TransactionID),
			logger.ErrorField(err),
		)
		return 0, storeError("insert", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("insert", err)
	}
	if affected == 0 {
		return domain.CreateAlreadyExists, nil
	}

	logger.Debug("Transaction row created", logger.TransactionID(txn.TransactionID))
	return domain.CreateInserted, nil
}

// GetByID retrieves a transaction by its caller supplied id
func (r *transactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	defer r.observe("get_by_id", time.Now())

	query := r.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = ?`)

	var txn domain.Transaction
	if err := r.db.GetContext(ctx, &txn, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		logger.Error("Failed to get transaction by ID",
			logger.TransactionID(id),
			logger.ErrorField(err),
		)
		return nil, storeError("get", err)
	}

	normalize(&txn)
	return &txn, nil
}

// MarkEnqueued stamps enqueued_at the first time the id reaches the queue
func (r *transactionRepository) MarkEnqueued(ctx context.Context, id string, at time.Time) (bool, error) {
	defer r.observe("mark_enqueued", time.Now())

	query := r.db.Rebind(`
		UPDATE transactions SET enqueued_at = ?
		WHERE transaction_id = ? AND enqueued_at IS NULL
	`)
	return r.execConditional(ctx, "mark_enqueued", query, at.UTC(), id)
}

// IncrementAttempts bumps the attempt counter of a PROCESSING row and returns the new value
func (r *transactionRepository) IncrementAttempts(ctx context.Context, id string, at time.Time) (int, bool, error) {
	defer r.observe("increment_attempts", time.Now())

	query := r.db.Rebind(`
		UPDATE transactions SET attempts = attempts + 1, updated_at = ?
		WHERE transaction_id = ? AND status = ?
		RETURNING attempts
	`)

	var attempts int
	err := r.db.QueryRowxContext(ctx, query, at.UTC(), id, domain.StatusProcessing).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		logger.Error("Failed to increment attempts",
			logger.TransactionID(id),
			logger.ErrorField(err),
		)
		return 0, false, storeError("increment_attempts", err)
	}
	return attempts, true, nil
}

// ReleaseAttempt decrements the attempt counter of a PROCESSING row
func (r *transactionRepository) ReleaseAttempt(ctx context.Context, id string, at time.Time) (bool, error) {
	defer r.observe("release_attempt", time.Now())

	query := r.db.Rebind(`
		UPDATE transactions SET attempts = attempts - 1, updated_at = ?
		WHERE transaction_id = ? AND status = ? AND attempts > 0
	`)
	return r.execConditional(ctx, "release_attempt", query, at.UTC(), id, domain.StatusProcessing)
}

// MarkProcessed applies PROCESSING -> PROCESSED
func (r *transactionRepository) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	defer r.observe("mark_processed", time.Now())

	query := r.db.Rebind(`
		UPDATE transactions SET status = ?, processed_at = ?, updated_at = ?
		WHERE transaction_id = ? AND status = ?
	`)
	return r.execConditional(ctx, "mark_processed", query,
		domain.StatusProcessed, at.UTC(), at.UTC(), id, domain.StatusProcessing)
}

// MarkFailed applies PROCESSING -> FAILED
func (r *transactionRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	defer r.observe("mark_failed", time.Now())

	query := r.db.Rebind(`
		UPDATE transactions SET status = ?, failure_reason = ?, updated_at = ?
		WHERE transaction_id = ? AND status = ?
	`)
	return r.execConditional(ctx, "mark_failed", query,
		domain.StatusFailed, reason, at.UTC(), id, domain.StatusProcessing)
}

// ListStranded returns PROCESSING rows that never reached the queue
func (r *transactionRepository) ListStranded(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Transaction, error) {
	defer r.observe("list_stranded", time.Now())

	if limit <= 0 {
		limit = 100
	}

	query := r.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = ? AND enqueued_at IS NULL AND created_at < ?
		ORDER BY created_at
		LIMIT ?`)

	var rows []*domain.Transaction
	if err := r.db.SelectContext(ctx, &rows, query, domain.StatusProcessing, createdBefore.UTC(), limit); err != nil {
		logger.Error("Failed to list stranded transactions", logger.ErrorField(err))
		return nil, storeError("list_stranded", err)
	}

	for _, txn := range rows {
		normalize(txn)
	}
	return rows, nil
}

// Ping checks database connectivity
func (r *transactionRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

func (r *transactionRepository) execConditional(ctx context.Context, operation, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Error("Failed to update transaction",
			logger.String("operation", operation),
			logger.ErrorField(err),
		)
		return false, storeError(operation, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeError(operation, err)
	}
	return affected == 1, nil
}

// normalize puts every timestamp in UTC regardless of driver location handling.
func normalize(txn *domain.Transaction) {
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.UpdatedAt = txn.UpdatedAt.UTC()
	if txn.EnqueuedAt != nil {
		at := txn.EnqueuedAt.UTC()
		txn.EnqueuedAt = &at
	}
	if txn.ProcessedAt != nil {
		at := txn.ProcessedAt.UTC()
		txn.ProcessedAt = &at
	}
}
