package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfanzaky/txnhook/config"
	"github.com/alfanzaky/txnhook/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "txnhook",
		Short:         "Idempotent transaction webhook ingestion and processing",
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newReconcileCmd(),
	)
	return root
}

// loadConfig reads and validates configuration, then initializes the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Init(cfg.App.Environment, cfg.App.LogLevel)
	if cfg.App.IsDevelopment() {
		cfg.Print()
	}
	return cfg, nil
}
