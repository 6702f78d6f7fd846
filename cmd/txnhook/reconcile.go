package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfanzaky/txnhook/pkg/logger"
)

func newReconcileCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Requeue expired leases and accepted transactions that never reached the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx := contextOrBackground(cmd.Context())
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if olderThan <= 0 {
				olderThan = cfg.Processing.StrandedAfter
			}

			expired, err := a.queueRepo.RequeueExpired(ctx, limit)
			if err != nil {
				return fmt.Errorf("requeue expired leases: %w", err)
			}
			stranded, err := a.transactionUC.RequeueStranded(ctx, olderThan, limit)
			if err != nil {
				return fmt.Errorf("requeue stranded transactions: %w", err)
			}

			logger.Info("Reconciliation finished",
				logger.Int("expired_leases", expired),
				logger.Int("stranded", stranded),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d expired leases and %d stranded transactions\n", expired, stranded)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum age of stranded rows (default STRANDED_AFTER)")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum rows to requeue per pass")
	return cmd
}
