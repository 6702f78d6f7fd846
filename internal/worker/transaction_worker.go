package worker

import (
	"context"
	"sync"
	"time"

	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/metrics"
)

const (
	defaultConcurrency   = 4
	defaultPollInterval  = 500 * time.Millisecond
	defaultReapInterval  = 5 * time.Second
	defaultReapBatchSize = 100
	queueOpTimeout       = 5 * time.Second
	queueMetricName      = "transactions"
)

// RetryPolicy decides what happens to a delivery whose processing failed.
type RetryPolicy interface {
	ShouldRetry(attempts int) bool
	Backoff(attempt int) time.Duration
}

// TransactionWorker runs a pool of consumers that lease transaction IDs from
// the queue and delegate processing to TransactionUsecase. A reaper loop
// returns expired leases to the queue and re-enqueues stranded rows.
// Callers manage the lifecycle through the context passed to Start.
type TransactionWorker struct {
	queueRepo     domain.QueueRepository
	trxUC         domain.TransactionUsecase
	retry         RetryPolicy
	concurrency   int
	interval      time.Duration
	reapInterval  time.Duration
	reapBatchSize int
	strandedAfter time.Duration
}

// TransactionWorkerConfig defines runtime options for the worker.
type TransactionWorkerConfig struct {
	Concurrency     int
	PollingInterval time.Duration
	ReapInterval    time.Duration
	ReapBatchSize   int
	// StrandedAfter is the age after which an accepted but never enqueued
	// row is handed to the queue again. Zero disables the sweep.
	StrandedAfter time.Duration
}

// NewTransactionWorker builds a new transaction worker instance.
func NewTransactionWorker(queueRepo domain.QueueRepository, trxUC domain.TransactionUsecase, retry RetryPolicy, cfg TransactionWorkerConfig) *TransactionWorker {
	w := &TransactionWorker{
		queueRepo:     queueRepo,
		trxUC:         trxUC,
		retry:         retry,
		concurrency:   cfg.Concurrency,
		interval:      cfg.PollingInterval,
		reapInterval:  cfg.ReapInterval,
		reapBatchSize: cfg.ReapBatchSize,
		strandedAfter: cfg.StrandedAfter,
	}

	if w.concurrency <= 0 {
		w.concurrency = defaultConcurrency
	}
	if w.interval <= 0 {
		w.interval = defaultPollInterval
	}
	if w.reapInterval <= 0 {
		w.reapInterval = defaultReapInterval
	}
	if w.reapBatchSize <= 0 {
		w.reapBatchSize = defaultReapBatchSize
	}

	return w
}

// Start launches the consumers and the reaper. It blocks until the context
// is cancelled and every in-flight delivery has been acked or released.
func (w *TransactionWorker) Start(ctx context.Context) {
	logger.Info("Transaction worker started",
		logger.Int("concurrency", w.concurrency),
		logger.Duration("poll_interval", w.interval),
	)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reap(ctx)
	}()

	wg.Wait()
	logger.Info("Transaction worker stopped")
}

func (w *TransactionWorker) consume(ctx context.Context, id int) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Consumer stopping", logger.Int("consumer", id))
			return
		case <-ticker.C:
			// Drain what is ready before waiting for the next tick.
			for ctx.Err() == nil && w.processNext(ctx) {
			}
		}
	}
}

func (w *TransactionWorker) reap(ctx context.Context) {
	ticker := time.NewTicker(w.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reapOnce(ctx)
		}
	}
}

// reapOnce runs one maintenance pass.
func (w *TransactionWorker) reapOnce(ctx context.Context) {
	moved, err := w.queueRepo.RequeueExpired(ctx, w.reapBatchSize)
	if err != nil {
		logger.Error("Failed to requeue expired leases", logger.ErrorField(err))
	} else if moved > 0 {
		metrics.RecordRequeued("lease_expired", moved)
		logger.Warn("Expired leases returned to queue", logger.Int("count", moved))
	}

	if w.strandedAfter > 0 {
		if _, err := w.trxUC.RequeueStranded(ctx, w.strandedAfter, w.reapBatchSize); err != nil {
			logger.Error("Failed to requeue stranded transactions", logger.ErrorField(err))
		}
	}

	stats, err := w.queueRepo.Stats(ctx)
	if err != nil {
		return
	}
	metrics.SetQueueSize(queueMetricName, "ready", float64(stats.Ready))
	metrics.SetQueueSize(queueMetricName, "leased", float64(stats.Leased))
}

// processNext handles one delivery. It returns false when nothing was leased.
func (w *TransactionWorker) processNext(ctx context.Context) bool {
	if w.queueRepo == nil || w.trxUC == nil {
		logger.Warn("Transaction worker missing dependencies")
		return false
	}

	delivery, err := w.queueRepo.Dequeue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Failed to dequeue transaction", logger.ErrorField(err))
		}
		return false
	}
	if delivery == nil {
		return false
	}

	w.handle(ctx, delivery)
	return true
}

func (w *TransactionWorker) handle(ctx context.Context, delivery *domain.Delivery) {
	trxID := delivery.TransactionID

	start := time.Now()
	result, err := w.trxUC.ProcessTransaction(ctx, trxID)
	duration := time.Since(start)

	// Queue bookkeeping must finish even when shutdown cancelled ctx.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queueOpTimeout)
	defer cancel()

	if err == nil {
		w.ack(opCtx, trxID)
		metrics.RecordProcessingResult(string(result.Outcome))
		logger.Info("Queued transaction handled",
			logger.TransactionID(trxID),
			logger.String("outcome", string(result.Outcome)),
			logger.Duration("duration", duration),
		)
		return
	}

	if ctx.Err() != nil {
		w.nack(opCtx, trxID, 0)
		metrics.RecordProcessingResult("interrupted")
		logger.Warn("Processing interrupted by shutdown, released for redelivery",
			logger.TransactionID(trxID),
		)
		return
	}

	attempts := 0
	if result != nil {
		attempts = result.Attempts
	}

	if attempts > 0 && !w.retry.ShouldRetry(attempts) {
		applied, failErr := w.trxUC.FailTransaction(opCtx, trxID, err.Error())
		if failErr != nil {
			logger.Error("Failed to mark transaction as failed",
				logger.TransactionID(trxID),
				logger.ErrorField(failErr),
			)
			w.nack(opCtx, trxID, w.retry.Backoff(attempts))
			return
		}

		w.ack(opCtx, trxID)
		metrics.RecordProcessingResult("exhausted")
		logger.Error("Transaction retries exhausted",
			logger.TransactionID(trxID),
			logger.Int("attempts", attempts),
			logger.Bool("applied", applied),
			logger.ErrorField(err),
		)
		return
	}

	delay := w.retry.Backoff(max(attempts, 1))
	w.nack(opCtx, trxID, delay)
	metrics.RecordProcessingResult("retry")
	logger.Warn("Failed to process queued transaction, retry scheduled",
		logger.TransactionID(trxID),
		logger.Int("attempts", attempts),
		logger.Duration("retry_in", delay),
		logger.Duration("duration", duration),
		logger.ErrorField(err),
	)
}

func (w *TransactionWorker) ack(ctx context.Context, trxID string) {
	if err := w.queueRepo.Ack(ctx, trxID); err != nil {
		// The lease will expire and the item is redelivered; processing is idempotent.
		logger.Error("Failed to ack transaction",
			logger.TransactionID(trxID),
			logger.ErrorField(err),
		)
	}
}

func (w *TransactionWorker) nack(ctx context.Context, trxID string, delay time.Duration) {
	if err := w.queueRepo.Nack(ctx, trxID, delay); err != nil {
		logger.Error("Failed to release transaction",
			logger.TransactionID(trxID),
			logger.ErrorField(err),
		)
	}
}
