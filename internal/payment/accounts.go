package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/pkg/models"
)

// AccountSync mirrors connected account capabilities into the local store.
type AccountSync struct {
	store  store.Store
	logger *slog.Logger
}

func NewAccountSync(s store.Store, logger *slog.Logger) *AccountSync {
	return &AccountSync{store: s, logger: logger}
}

// HandleAccountUpdated copies the account flags. Onboarding counts as complete once the
// account holder has submitted their details.
func (a *AccountSync) HandleAccountUpdated(ctx context.Context, acct *gateway.Account) error {
	err := a.store.UpdatePayoutAccountStatus(ctx, acct.ID, models.AccountStatus{
		PayoutsEnabled:   acct.PayoutsEnabled,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	})
	if errors.Is(err, store.ErrNotFound) {
		a.logger.Info("account update for unknown account", slog.String("account_id", acct.ID))
		return nil
	}
	if err != nil {
		return err
	}

	a.logger.Info("payout account synced",
		slog.String("account_id", acct.ID),
		slog.Bool("payouts_enabled", acct.PayoutsEnabled),
		slog.Bool("charges_enabled", acct.ChargesEnabled),
		slog.Bool("details_submitted", acct.DetailsSubmitted))
	return nil
}
