package main

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/alfanzaky/txnhook/config"
	"github.com/alfanzaky/txnhook/internal/adapter/delay"
	"github.com/alfanzaky/txnhook/internal/adapter/factory"
	"github.com/alfanzaky/txnhook/internal/adapter/settlement"
	"github.com/alfanzaky/txnhook/internal/domain"
	"github.com/alfanzaky/txnhook/internal/events"
	"github.com/alfanzaky/txnhook/internal/repository/memory"
	redisrepo "github.com/alfanzaky/txnhook/internal/repository/redis"
	"github.com/alfanzaky/txnhook/internal/repository/sqlstore"
	"github.com/alfanzaky/txnhook/internal/usecase"
	"github.com/alfanzaky/txnhook/internal/worker"
	"github.com/alfanzaky/txnhook/pkg/logger"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg             *config.Config
	db              *sqlx.DB
	rdb             *goredis.Client
	transactionRepo domain.TransactionRepository
	queueRepo       domain.QueueRepository
	publisher       domain.EventPublisher
	retry           *usecase.RetryPolicy
	transactionUC   domain.TransactionUsecase
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.transactionRepo = sqlstore.NewTransactionRepository(db)

	if err := a.openQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}

	processor, err := newProcessor(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	a.retry = usecase.NewRetryPolicy(usecase.RetryConfig{
		MaxAttempts:       cfg.Worker.MaxAttempts,
		InitialDelay:      cfg.Worker.RetryInitialDelay,
		MaxDelay:          cfg.Worker.RetryMaxDelay,
		BackoffMultiplier: cfg.Worker.RetryMultiplier,
		EnableJitter:      cfg.Worker.RetryJitter,
	})
	a.transactionUC = usecase.NewTransactionUsecase(a.transactionRepo, a.queueRepo, processor, a.publisher,
		usecase.TransactionUsecaseConfig{
			ProcessingTimeout: cfg.Processing.Timeout,
			MaxAttempts:       a.retry.MaxAttempts(),
		})

	logger.Info("Dependencies initialized",
		logger.String("db_driver", cfg.Database.Driver),
		logger.String("queue_backend", cfg.Queue.Backend),
		logger.String("processor", processor.Name()),
	)
	return a, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.GetDSN(),
		MaxIdle: cfg.Database.MaxIdle,
		MaxOpen: cfg.Database.MaxOpen,
		MaxLife: cfg.Database.MaxLife,
	})
	if err != nil {
		return nil, err
	}

	if err := sqlstore.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) openQueue(ctx context.Context) error {
	if a.cfg.Queue.Backend == config.QueueBackendMemory {
		logger.Warn("Using in-memory queue, queued work is lost on restart")
		a.queueRepo = memory.NewQueueRepository(a.cfg.Queue.VisibilityTimeout)
		return nil
	}

	rdb, err := redisrepo.NewClient(ctx, redisrepo.ClientConfig{
		Addr:     a.cfg.Redis.GetRedisAddr(),
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	a.rdb = rdb
	a.queueRepo = redisrepo.NewQueueRepository(rdb, redisrepo.QueueConfig{
		KeyPrefix:         a.cfg.Queue.KeyPrefix,
		VisibilityTimeout: a.cfg.Queue.VisibilityTimeout,
	})
	return nil
}

func newProcessor(cfg *config.Config) (domain.Processor, error) {
	processors := factory.NewProcessorFactory()
	processors.RegisterProcessor(delay.Name, delay.NewProcessor(cfg.Processing.Delay))
	if cfg.Settlement.BaseURL != "" {
		processors.RegisterProcessor(config.ProcessorSettlement, settlement.NewAdapter(cfg.Settlement, nil))
	}
	return processors.GetProcessor(cfg.Processing.Processor)
}

func (a *app) newWorker() *worker.TransactionWorker {
	return worker.NewTransactionWorker(a.queueRepo, a.transactionUC, a.retry, worker.TransactionWorkerConfig{
		Concurrency:     a.cfg.Worker.Concurrency,
		PollingInterval: a.cfg.Worker.PollInterval,
		ReapInterval:    a.cfg.Queue.ReapInterval,
		StrandedAfter:   a.cfg.Processing.StrandedAfter,
	})
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", logger.ErrorField(err))
		}
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
