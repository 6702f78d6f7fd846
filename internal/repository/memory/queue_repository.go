package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
)

const defaultVisibilityTimeout = 5 * time.Minute

type queueRepository struct {
	mu         sync.Mutex
	ready      []string
	leases     map[string]time.Time
	visibility time.Duration
	now        func() time.Time
}

var _ domain.QueueRepository = (*queueRepository)(nil)

// NewQueueRepository creates an in-process lease queue with the same
// visibility semantics as the Redis queue. Items do not survive a restart.
func NewQueueRepository(visibility time.Duration) *queueRepository {
	if visibility <= 0 {
		visibility = defaultVisibilityTimeout
	}
	return &queueRepository{
		leases:     make(map[string]time.Time),
		visibility: visibility,
		now:        time.Now,
	}
}

// WithClock replaces the time source; used by tests to expire leases.
func (q *queueRepository) WithClock(now func() time.Time) *queueRepository {
	q.now = now
	return q
}

func (q *queueRepository) Enqueue(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.ready = append(q.ready, transactionID)
	return nil
}

func (q *queueRepository) Dequeue(ctx context.Context) (*domain.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) == 0 {
		return nil, nil
	}

	id := q.ready[0]
	q.ready = q.ready[1:]

	deadline := q.now().Add(q.visibility)
	q.leases[id] = deadline
	return &domain.Delivery{TransactionID: id, LeasedUntil: deadline}, nil
}

func (q *queueRepository) Ack(ctx context.Context, transactionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.leases, transactionID)
	return nil
}

func (q *queueRepository) Nack(ctx context.Context, transactionID string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if delay <= 0 {
		delete(q.leases, transactionID)
		q.ready = append(q.ready, transactionID)
		return nil
	}
	q.leases[transactionID] = q.now().Add(delay)
	return nil
}

func (q *queueRepository) RequeueExpired(ctx context.Context, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var expired []string
	for id, deadline := range q.leases {
		if !deadline.After(now) {
			expired = append(expired, id)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return q.leases[expired[i]].Before(q.leases[expired[j]])
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, id := range expired {
		delete(q.leases, id)
		q.ready = append(q.ready, id)
	}
	return len(expired), nil
}

func (q *queueRepository) Stats(ctx context.Context) (domain.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.QueueStats{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return domain.QueueStats{
		Ready:  int64(len(q.ready)),
		Leased: int64(len(q.leases)),
	}, nil
}

func (q *queueRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
