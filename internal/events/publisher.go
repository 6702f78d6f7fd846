package events

import (
	"context"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/internal/events/kafka"
	"github.com/alfanzaky/txnhook/pkg/logger"
)

// NoopPublisher drops events. It is used when no broker is configured.
type NoopPublisher struct{}

var _ domain.EventPublisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, *domain.TransactionEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }

// NewPublisher returns a Kafka publisher, or a NoopPublisher when brokers is empty.
func NewPublisher(brokers []string, topic string) domain.EventPublisher {
	if len(brokers) == 0 {
		logger.Info("Event publishing disabled, no Kafka brokers configured")
		return NoopPublisher{}
	}

	logger.Info("Publishing transaction events to Kafka",
		logger.Any("brokers", brokers),
		logger.String("topic", topic),
	)
	return kafka.NewPublisher(brokers, topic)
}
