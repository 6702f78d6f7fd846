package domain

import (
	"context"
	"time"
)

// Processor performs the business step for an accepted transaction.
// Implementations must return promptly once ctx is done.
type Processor interface {
	Name() string
	Process(ctx context.Context, txn *Transaction) error
}

// ProcessorFactory resolves processors by name
type ProcessorFactory interface {
	RegisterProcessor(name string, processor Processor)
	GetProcessor(name string) (Processor, error)
}

// TransactionEvent is published after a status transition has been applied.
type TransactionEvent struct {
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Attempts      int               `json:"attempts"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
	FailureReason *string           `json:"failure_reason,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// EventPublisher delivers transaction events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *TransactionEvent) error
	Close() error
}
