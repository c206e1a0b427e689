package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and deliver queued notifications",
	}
	cmd.AddCommand(outboxProcessCmd())
	cmd.AddCommand(outboxPurgeCmd())
	return cmd
}

func outboxProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Deliver one batch of pending outbox entries and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores := newStores(app.db)
			processor := newOutboxProcessor(app.cfg, stores.OutboxStore)
			stats, err := processor.ProcessPending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d, failed %d, backing off %d\n", stats.Delivered, stats.Failed, stats.Skipped)
			return nil
		},
	}
}

func outboxPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete delivered and abandoned entries older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			stores := newStores(app.db)
			n, err := stores.OutboxStore.PurgeFinished(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of entries to delete")
	return cmd
}
