package main

import (
	"github.com/spf13/cobra"

	"github.com/alfanzaky/txnhook/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the transaction store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			db, err := openDatabase(contextOrBackground(cmd.Context()), cfg)
			if err != nil {
				logger.Error("Migration failed", logger.ErrorField(err))
				return err
			}
			defer db.Close()

			logger.Info("Schema is up to date", logger.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}
