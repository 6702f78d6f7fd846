package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/metrics"
	"github.com/go-redis/redis/v8"
)

// Queue keys
const (
	DefaultKeyPrefix = "txnhook:queue"

	readySuffix  = ":ready"
	leasesSuffix = ":leases"

	defaultVisibilityTimeout = 5 * time.Minute
)

// The ready list is LPUSH/RPOP (FIFO). Leased ids live in a sorted set scored
// by their lease deadline in unix milliseconds. The current time is passed in
// from the caller so every consumer uses the same clock source.
var (
	dequeueScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id)
return id
`)

	releaseScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('LPUSH', KEYS[1], ARGV[1])
return 1
`)

	requeueExpiredScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('LPUSH', KEYS[1], id)
end
return #ids
`)
)

type queueRepository struct {
	client     *redis.Client
	readyKey   string
	leasesKey  string
	prefix     string
	visibility time.Duration
	now        func() time.Time
}

var _ domain.QueueRepository = (*queueRepository)(nil)

// QueueConfig configures the Redis lease queue
type QueueConfig struct {
	KeyPrefix         string
	VisibilityTimeout time.Duration
}

// NewQueueRepository creates a new Redis backed work queue
func NewQueueRepository(client *redis.Client, cfg QueueConfig) *queueRepository {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	visibility := cfg.VisibilityTimeout
	if visibility <= 0 {
		visibility = defaultVisibilityTimeout
	}

	return &queueRepository{
		client:     client,
		readyKey:   prefix + readySuffix,
		leasesKey:  prefix + leasesSuffix,
		prefix:     prefix,
		visibility: visibility,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for lease deadlines.
func (r *queueRepository) WithClock(now func() time.Time) *queueRepository {
	r.now = now
	return r
}

func (r *queueRepository) keys() []string {
	return []string{r.readyKey, r.leasesKey}
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Enqueue adds a transaction ID to the ready list
func (r *queueRepository) Enqueue(ctx context.Context, transactionID string) error {
	if err := r.client.LPush(ctx, r.readyKey, transactionID).Err(); err != nil {
		metrics.RecordRedisOperation("enqueue", "error")
		logger.Error("Failed to enqueue transaction",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
		return fmt.Errorf("%w: enqueue: %w", domain.ErrQueueUnavailable, err)
	}

	metrics.RecordRedisOperation("enqueue", "success")
	logger.Debug("Transaction enqueued",
		logger.TransactionID(transactionID),
		logger.String("queue", r.readyKey),
	)
	return nil
}

// Dequeue leases the next ready transaction ID, or returns nil when empty
func (r *queueRepository) Dequeue(ctx context.Context) (*domain.Delivery, error) {
	deadline := r.now().Add(r.visibility)

	id, err := dequeueScript.Run(ctx, r.client, r.keys(), score(deadline)).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		metrics.RecordRedisOperation("dequeue", "error")
		return nil, fmt.Errorf("%w: dequeue: %w", domain.ErrQueueUnavailable, err)
	}

	metrics.RecordRedisOperation("dequeue", "success")
	return &domain.Delivery{TransactionID: id, LeasedUntil: deadline}, nil
}

// Ack removes the lease for a finished transaction
func (r *queueRepository) Ack(ctx context.Context, transactionID string) error {
	if err := r.client.ZRem(ctx, r.leasesKey, transactionID).Err(); err != nil {
		metrics.RecordRedisOperation("ack", "error")
		return fmt.Errorf("%w: ack: %w", domain.ErrQueueUnavailable, err)
	}

	metrics.RecordRedisOperation("ack", "success")
	return nil
}

// Nack releases a lease. With a positive delay the lease deadline is moved
// so the reaper makes the item visible again once it passes.
func (r *queueRepository) Nack(ctx context.Context, transactionID string, delay time.Duration) error {
	var err error
	if delay <= 0 {
		err = releaseScript.Run(ctx, r.client, r.keys(), transactionID).Err()
	} else {
		err = r.client.ZAdd(ctx, r.leasesKey, &redis.Z{
			Score:  float64(r.now().Add(delay).UnixMilli()),
			Member: transactionID,
		}).Err()
	}

	if err != nil {
		metrics.RecordRedisOperation("nack", "error")
		return fmt.Errorf("%w: nack: %w", domain.ErrQueueUnavailable, err)
	}

	metrics.RecordRedisOperation("nack", "success")
	return nil
}

// RequeueExpired moves up to limit expired leases back to the ready list
func (r *queueRepository) RequeueExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	moved, err := requeueExpiredScript.Run(ctx, r.client, r.keys(), score(r.now()), limit).Int()
	if err != nil {
		metrics.RecordRedisOperation("requeue_expired", "error")
		return 0, fmt.Errorf("%w: requeue expired: %w", domain.ErrQueueUnavailable, err)
	}

	metrics.RecordRedisOperation("requeue_expired", "success")
	if moved > 0 {
		logger.Info("Expired leases requeued",
			logger.Int("count", moved),
			logger.String("queue", r.prefix),
		)
	}
	return moved, nil
}

// Stats returns the ready and leased counts
func (r *queueRepository) Stats(ctx context.Context) (domain.QueueStats, error) {
	pipe := r.client.Pipeline()
	ready := pipe.LLen(ctx, r.readyKey)
	leased := pipe.ZCard(ctx, r.leasesKey)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordRedisOperation("stats", "error")
		return domain.QueueStats{}, fmt.Errorf("%w: stats: %w", domain.ErrQueueUnavailable, err)
	}

	metrics.RecordRedisOperation("stats", "success")
	return domain.QueueStats{Ready: ready.Val(), Leased: leased.Val()}, nil
}

// Ping checks Redis connectivity
func (r *queueRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrQueueUnavailable, err)
	}
	return nil
}
