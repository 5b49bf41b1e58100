package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mimanitas/settlement/internal/webhook"
)

func signCmd() *cobra.Command {
	var (
		secret    string
		body      string
		bodyFile  string
		timestamp int64
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a Stripe-Signature header for a webhook payload",
		Long: `Sign a payload the way the gateway does, for replaying events against a local
server.

Examples:
  settlementctl sign --secret whsec_x --body '{"id":"evt_1","type":"payout.paid","data":{"object":{}}}'
  settlementctl sign --secret whsec_x --body-file event.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("STRIPE_WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("secret is required (--secret or STRIPE_WEBHOOK_SECRET)")
			}

			payload := []byte(body)
			switch {
			case bodyFile == "-":
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = b
			case bodyFile != "":
				b, err := os.ReadFile(bodyFile)
				if err != nil {
					return err
				}
				payload = b
			}

			ts := time.Now()
			if timestamp > 0 {
				ts = time.Unix(timestamp, 0)
			}
			fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(secret, ts, payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret")
	cmd.Flags().StringVar(&body, "body", "", "raw payload")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "read payload from file, - for stdin")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix timestamp to sign with (default now)")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")

	return cmd
}
