package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mimanitas/settlement/internal/config"
	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/logging"
	"github.com/mimanitas/settlement/internal/payment"
	"github.com/mimanitas/settlement/internal/store"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <payment_intent_id|checkout_session_id>",
		Short: "Re-drive finalization for a payment the service may have missed",
		Long: `Fetch the payment from the gateway and finalize its job if it succeeded. Safe to run
repeatedly: an already settled job is reported as already processed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.New(cfg.Logging, os.Stderr)

			ctx := cmd.Context()
			pool, err := store.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			var pub events.Publisher = events.NopPublisher{}
			if cfg.RabbitMQ.URL != "" {
				p, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
				if err != nil {
					return fmt.Errorf("connect rabbitmq: %w", err)
				}
				defer p.Close()
				pub = p
			}

			coordinator := payment.NewCoordinator(
				store.NewPostgresStore(pool),
				gateway.NewHTTPClient(cfg.Stripe.BaseURL, cfg.Stripe.SecretKey, cfg.Stripe.Timeout),
				pub,
				payment.Settings{
					FeePercent: cfg.Payments.PlatformFeePercent,
					Currency:   cfg.Stripe.Currency,
					Platform:   cfg.Stripe.Platform,
				},
				logger,
			)

			res, err := coordinator.Reconcile(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
