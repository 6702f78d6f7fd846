package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	apihandler "github.com/alfanzaky/txnhook/internal/handler/api"
	"github.com/alfanzaky/txnhook/pkg/logger"
	"github.com/alfanzaky/txnhook/pkg/observability"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var noWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, unless disabled, the worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), !noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve the API only; run workers with the worker command")
	return cmd
}

func runServe(parent context.Context, withWorkers bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", logger.ErrorField(err))
		return err
	}
	defer a.Close()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	metricsHandler := observability.NewMetricsHandler()
	metricsHandler.RegisterCheck("database", a.transactionRepo)
	metricsHandler.RegisterCheck("queue", a.queueRepo)

	router := apihandler.NewRouter(
		apihandler.RouterConfig{MaxRequestSize: cfg.API.MaxRequestSize},
		apihandler.NewTransactionHandler(a.transactionUC),
		metricsHandler,
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var workers sync.WaitGroup
	if withWorkers {
		transactionWorker := a.newWorker()
		workers.Add(1)
		go func() {
			defer workers.Done()
			transactionWorker.Start(workerCtx)
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			logger.String("port", cfg.App.Port),
			logger.String("environment", cfg.App.Environment),
			logger.Bool("workers", withWorkers),
		)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("Failed to start server", logger.ErrorField(err))
			workerCancel()
			workers.Wait()
			return err
		}
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting webhooks first, then let workers release their leases.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}
	workerCancel()
	workers.Wait()

	logger.Info("Server exited")
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
