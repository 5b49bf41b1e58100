// Command settlementctl is the operator tool for the settlement service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "settlementctl",
		Short:         "Operate the payment settlement service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(apiKeyCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(signCmd())

	return root
}

// databaseURLFlag registers --database-url defaulting to DATABASE_URL.
func databaseURLFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
}

func requireDatabaseURL(url string) error {
	if url == "" {
		return fmt.Errorf("database URL is required (--database-url or DATABASE_URL)")
	}
	return nil
}
