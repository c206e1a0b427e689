package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runclub/internal/adapters/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := storage.Migrate(ctx, app.db); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			v, err := storage.SchemaVersion(ctx, app.db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at %s\n", v)
			return nil
		},
	}
}
