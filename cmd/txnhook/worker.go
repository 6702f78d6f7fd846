package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfanzaky/txnhook/pkg/logger"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool without the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				logger.Error("Failed to initialize", logger.ErrorField(err))
				return err
			}
			defer a.Close()

			// Start blocks until the signal arrives and in-flight work is released.
			a.newWorker().Start(ctx)
			return nil
		},
	}
}
