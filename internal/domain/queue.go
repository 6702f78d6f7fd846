package domain

import (
	"context"
	"time"
)

// Delivery is a work item handed to a worker under a lease. Until it is
// acknowledged or released, other consumers cannot see it; once the lease
// expires it becomes visible again.
type Delivery struct {
	TransactionID string
	LeasedUntil   time.Time
}

// QueueStats is a point-in-time view of queue depth.
type QueueStats struct {
	Ready  int64
	Leased int64
}

// QueueRepository defines the contract for the durable work queue
// that transports transaction IDs to workers for processing.
type QueueRepository interface {
	Enqueue(ctx context.Context, transactionID string) error
	// Dequeue leases the next ready item. It returns nil when the queue is empty.
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, transactionID string) error
	// Nack releases a leased item; it becomes visible again after delay.
	Nack(ctx context.Context, transactionID string, delay time.Duration) error
	// RequeueExpired moves up to limit items with expired leases back to ready.
	RequeueExpired(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context) (QueueStats, error)
	Ping(ctx context.Context) error
}
