package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/metrics"
	"github.com/alfanzaky/txnhook/pkg/utils"
)

const (
	defaultProcessingTimeout = 60 * time.Second
	finalizeTimeout          = 5 * time.Second
	maxFailureReasonLength   = 500
)

type transactionUsecase struct {
	transactionRepo   domain.TransactionRepository
	queueRepo         domain.QueueRepository
	processor         domain.Processor
	publisher         domain.EventPublisher
	processingTimeout time.Duration
	maxAttempts       int
	now               func() time.Time
}

// TransactionUsecaseConfig defines runtime options for the use case.
type TransactionUsecaseConfig struct {
	ProcessingTimeout time.Duration
	// MaxAttempts fails a delivery outright once its attempt counter is past
	// the bound, without running the processor. Zero disables the check.
	MaxAttempts int
	// Clock defaults to time.Now; tests inject a fixed clock.
	Clock func() time.Time
}

// NewTransactionUsecase creates a new transaction use case
func NewTransactionUsecase(
	transactionRepo domain.TransactionRepository,
	queueRepo domain.QueueRepository,
	processor domain.Processor,
	publisher domain.EventPublisher,
	cfg TransactionUsecaseConfig,
) domain.TransactionUsecase {
	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &transactionUsecase{
		transactionRepo:   transactionRepo,
		queueRepo:         queueRepo,
		processor:         processor,
		publisher:         publisher,
		processingTimeout: timeout,
		maxAttempts:       cfg.MaxAttempts,
		now:               func() time.Time { return clock().UTC() },
	}
}

// IngestTransaction validates the payload, runs the idempotency guard and
// hands new transactions to the queue. Duplicates are acknowledged without
// touching the store or the queue.
func (uc *transactionUsecase) IngestTransaction(ctx context.Context, input domain.NewTransactionInput) (*domain.IngestResult, error) {
	txn, err := domain.NewTransaction(input, uc.now())
	if err != nil {
		return nil, err
	}

	result, err := uc.transactionRepo.CreateIfAbsent(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if result == domain.CreateAlreadyExists {
		logger.Ctx(ctx).Info("Duplicate transaction acknowledged",
			logger.TransactionID(txn.TransactionID),
		)
		return &domain.IngestResult{Transaction: txn, Duplicate: true}, nil
	}

	if err := uc.enqueue(ctx, txn.TransactionID); err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info("Transaction accepted",
		logger.TransactionID(txn.TransactionID),
		logger.String("amount", txn.Amount.String()),
		logger.String("currency", txn.Currency),
	)

	return &domain.IngestResult{Transaction: txn, Enqueued: true}, nil
}

// enqueue hands the id to the queue and stamps enqueued_at. A failed stamp is
// not an error: the item is queued, the sweeper may only queue it once more.
func (uc *transactionUsecase) enqueue(ctx context.Context, transactionID string) error {
	if err := uc.queueRepo.Enqueue(ctx, transactionID); err != nil {
		return fmt.Errorf("failed to enqueue transaction: %w", err)
	}

	if _, err := uc.transactionRepo.MarkEnqueued(ctx, transactionID, uc.now()); err != nil {
		logger.Ctx(ctx).Warn("Failed to stamp enqueued_at",
			logger.TransactionID(transactionID),
			logger.ErrorField(err),
		)
	}

	return nil
}

// GetTransaction returns the latest committed snapshot
func (uc *transactionUsecase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.transactionRepo.GetByID(ctx, id)
}

// ProcessTransaction executes the processing step for one delivery. It is
// safe to call any number of times for the same id: final rows are skipped
// and the PROCESSED transition is conditional on the row still being PROCESSING.
func (uc *transactionUsecase) ProcessTransaction(ctx context.Context, id string) (*domain.ProcessResult, error) {
	txn, err := uc.transactionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			logger.Warn("Queued transaction has no stored record", logger.TransactionID(id))
			return &domain.ProcessResult{Outcome: domain.OutcomeSkipped}, nil
		}
		return nil, err
	}

	if txn.IsFinalStatus() {
		logger.Debug("Transaction already final, skipping",
			logger.TransactionID(id),
			logger.String("status", string(txn.Status)),
		)
		return &domain.ProcessResult{Outcome: domain.OutcomeSkipped, Attempts: txn.Attempts}, nil
	}

	attempts, ok, err := uc.transactionRepo.IncrementAttempts(ctx, id, uc.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return &domain.ProcessResult{Outcome: domain.OutcomeSkipped, Attempts: txn.Attempts}, nil
	}
	txn.Attempts = attempts

	// A previous attempt died without reporting back (crash or lease expiry).
	if uc.maxAttempts > 0 && attempts > uc.maxAttempts {
		reason := fmt.Sprintf("exceeded %d processing attempts", uc.maxAttempts)
		if _, err := uc.FailTransaction(ctx, id, reason); err != nil {
			return nil, err
		}
		return &domain.ProcessResult{Outcome: domain.OutcomeFailed, Attempts: attempts}, nil
	}

	logger.Info("Processing transaction",
		logger.TransactionID(id),
		logger.Int("attempt", attempts),
		logger.String("processor", uc.processor.Name()),
	)

	start := time.Now()
	if err := uc.runProcessor(ctx, txn); err != nil {
		if ctx.Err() != nil {
			metrics.RecordProcessing(uc.processor.Name(), "interrupted", time.Since(start).Seconds())
			return &domain.ProcessResult{Outcome: domain.OutcomeFailed, Attempts: uc.releaseAttempt(ctx, id, attempts)}, err
		}
		metrics.RecordProcessing(uc.processor.Name(), "error", time.Since(start).Seconds())
		return &domain.ProcessResult{Outcome: domain.OutcomeFailed, Attempts: attempts}, err
	}
	metrics.RecordProcessing(uc.processor.Name(), "success", time.Since(start).Seconds())

	// The step has already run; finish the write even if shutdown started.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	processedAt := uc.now()
	applied, err := uc.transactionRepo.MarkProcessed(finalizeCtx, id, processedAt)
	if err != nil {
		return &domain.ProcessResult{Outcome: domain.OutcomeFailed, Attempts: attempts}, err
	}

	if !applied {
		logger.Info("Transaction finalized by another worker",
			logger.TransactionID(id),
		)
		return &domain.ProcessResult{Outcome: domain.OutcomeSuperseded, Attempts: attempts}, nil
	}

	uc.publish(finalizeCtx, &domain.TransactionEvent{
		TransactionID: id,
		Status:        domain.StatusProcessed,
		Attempts:      attempts,
		ProcessedAt:   &processedAt,
		OccurredAt:    processedAt,
	})

	logger.Info("Transaction processed",
		logger.TransactionID(id),
		logger.Int("attempt", attempts),
	)

	return &domain.ProcessResult{Outcome: domain.OutcomeProcessed, Attempts: attempts}, nil
}

// releaseAttempt returns an interrupted attempt so shutdowns do not count
// toward the attempt ceiling. It reports the resulting attempt count.
func (uc *transactionUsecase) releaseAttempt(ctx context.Context, id string, attempts int) int {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	released, err := uc.transactionRepo.ReleaseAttempt(releaseCtx, id, uc.now())
	if err != nil {
		logger.Warn("Failed to release interrupted attempt",
			logger.TransactionID(id),
			logger.ErrorField(err),
		)
		return attempts
	}
	if !released {
		return attempts
	}
	return attempts - 1
}

func (uc *transactionUsecase) runProcessor(ctx context.Context, txn *domain.Transaction) error {
	procCtx, cancel := context.WithTimeout(ctx, uc.processingTimeout)
	defer cancel()

	err := uc.processor.Process(procCtx, txn)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("processing interrupted: %w", ctx.Err())
	}
	if errors.Is(procCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", domain.ErrProcessingTimeout, uc.processingTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrProcessingFailed, err)
}

// FailTransaction moves a PROCESSING transaction to FAILED. It returns false
// when the row was already final.
func (uc *transactionUsecase) FailTransaction(ctx context.Context, id, reason string) (bool, error) {
	reason = utils.TruncateString(reason, maxFailureReasonLength)
	failedAt := uc.now()

	applied, err := uc.transactionRepo.MarkFailed(ctx, id, reason, failedAt)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	uc.publish(ctx, &domain.TransactionEvent{
		TransactionID: id,
		Status:        domain.StatusFailed,
		FailureReason: &reason,
		OccurredAt:    failedAt,
	})

	logger.Warn("Transaction marked as failed",
		logger.TransactionID(id),
		logger.String("reason", reason),
	)

	return true, nil
}

// RequeueStranded enqueues PROCESSING rows that were stored but never reached
// the queue, e.g. because the queue was down when the webhook arrived.
func (uc *transactionUsecase) RequeueStranded(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := uc.now().Add(-olderThan)

	stranded, err := uc.transactionRepo.ListStranded(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stranded transactions: %w", err)
	}

	requeued := 0
	for _, txn := range stranded {
		if err := uc.enqueue(ctx, txn.TransactionID); err != nil {
			metrics.RecordRequeued("stranded", requeued)
			return requeued, err
		}
		requeued++

		logger.Info("Stranded transaction requeued",
			logger.TransactionID(txn.TransactionID),
			logger.String("created_at", utils.FormatTimestamp(txn.CreatedAt)),
		)
	}

	metrics.RecordRequeued("stranded", requeued)
	return requeued, nil
}

func (uc *transactionUsecase) publish(ctx context.Context, event *domain.TransactionEvent) {
	if uc.publisher == nil {
		return
	}

	if err := uc.publisher.Publish(ctx, event); err != nil {
		metrics.RecordSystemError("event_publish", "usecase")
		logger.Error("Failed to publish transaction event",
			logger.TransactionID(event.TransactionID),
			logger.String("status", string(event.Status)),
			logger.ErrorField(err),
		)
		return
	}

	metrics.RecordEventPublished(string(event.Status))
}
