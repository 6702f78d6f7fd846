package delay

import (
	"context"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
)

// Name is the registry key for this processor
const Name = "delay"

// DefaultDuration mirrors the simulated settlement time of the reference flow
const DefaultDuration = 30 * time.Second

// Processor simulates external work by waiting a fixed duration. It returns
// early with the context error when cancelled or timed out.
type Processor struct {
	duration time.Duration
}

var _ domain.Processor = (*Processor)(nil)

// NewProcessor creates a delay processor; a zero duration completes immediately.
func NewProcessor(duration time.Duration) *Processor {
	if duration < 0 {
		duration = 0
	}
	return &Processor{duration: duration}
}

func (p *Processor) Name() string {
	return Name
}

func (p *Processor) Process(ctx context.Context, txn *domain.Transaction) error {
	logger.Debug("Simulating transaction processing",
		logger.TransactionID(txn.TransactionID),
		logger.Duration("delay", p.duration),
	)

	if p.duration == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
