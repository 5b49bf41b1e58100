package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mimanitas/settlement/internal/store"
)

func migrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireDatabaseURL(databaseURL); err != nil {
				return err
			}
			if err := store.RunMigrations(databaseURL); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	databaseURLFlag(cmd, &databaseURL)

	return cmd
}
