package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
)

type transactionRepository struct {
	mu   sync.RWMutex
	rows map[string]*domain.Transaction
}

var _ domain.TransactionRepository = (*transactionRepository)(nil)

// NewTransactionRepository creates an in-process transaction store. All
// mutations run under one lock, which gives the same conditional-update
// guarantees as the SQL store.
func NewTransactionRepository() *transactionRepository {
	return &transactionRepository{rows: make(map[string]*domain.Transaction)}
}

func (r *transactionRepository) CreateIfAbsent(ctx context.Context, txn *domain.Transaction) (domain.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[txn.TransactionID]; exists {
		return domain.CreateAlreadyExists, nil
	}
	r.rows[txn.TransactionID] = clone(txn)
	return domain.CreateInserted, nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return clone(row), nil
}

func (r *transactionRepository) MarkEnqueued(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(ctx, id, func(row *domain.Transaction) bool {
		if row.EnqueuedAt != nil {
			return false
		}
		stamp := at.UTC()
		row.EnqueuedAt = &stamp
		return true
	})
}

func (r *transactionRepository) IncrementAttempts(ctx context.Context, id string, at time.Time) (int, bool, error) {
	attempts := 0
	ok, err := r.update(ctx, id, func(row *domain.Transaction) bool {
		if row.Status != domain.StatusProcessing {
			return false
		}
		row.Attempts++
		row.UpdatedAt = at.UTC()
		attempts = row.Attempts
		return true
	})
	return attempts, ok, err
}

func (r *transactionRepository) ReleaseAttempt(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(ctx, id, func(row *domain.Transaction) bool {
		if row.Status != domain.StatusProcessing || row.Attempts == 0 {
			return false
		}
		row.Attempts--
		row.UpdatedAt = at.UTC()
		return true
	})
}

func (r *transactionRepository) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.update(ctx, id, func(row *domain.Transaction) bool {
		if row.Status != domain.StatusProcessing {
			return false
		}
		stamp := at.UTC()
		row.Status = domain.StatusProcessed
		row.ProcessedAt = &stamp
		row.UpdatedAt = stamp
		return true
	})
}

func (r *transactionRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	return r.update(ctx, id, func(row *domain.Transaction) bool {
		if row.Status != domain.StatusProcessing {
			return false
		}
		row.Status = domain.StatusFailed
		row.FailureReason = &reason
		row.UpdatedAt = at.UTC()
		return true
	})
}

func (r *transactionRepository) ListStranded(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Transaction
	for _, row := range r.rows {
		if row.NeedsEnqueue() && row.CreatedAt.Before(createdBefore) {
			result = append(result, clone(row))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *transactionRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *transactionRepository) update(ctx context.Context, id string, apply func(row *domain.Transaction) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	return apply(row), nil
}

func clone(txn *domain.Transaction) *domain.Transaction {
	cp := *txn
	if txn.FailureReason != nil {
		reason := *txn.FailureReason
		cp.FailureReason = &reason
	}
	if txn.EnqueuedAt != nil {
		at := *txn.EnqueuedAt
		cp.EnqueuedAt = &at
	}
	if txn.ProcessedAt != nil {
		at := *txn.ProcessedAt
		cp.ProcessedAt = &at
	}
	return &cp
}
