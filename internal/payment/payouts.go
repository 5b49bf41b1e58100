package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/store"
)

const (
	defaultPayoutFailureCode    = "unknown"
	defaultPayoutFailureMessage = "payout failed"
)

// PayoutTracker records the terminal status of worker withdrawals.
type PayoutTracker struct {
	store  store.Store
	events events.Publisher
	logger *slog.Logger
	now    clock
}

func NewPayoutTracker(s store.Store, pub events.Publisher, logger *slog.Logger) *PayoutTracker {
	return &PayoutTracker{store: s, events: pub, logger: logger, now: time.Now}
}

func (t *PayoutTracker) HandlePayoutPaid(ctx context.Context, p *gateway.Payout) error {
	err := t.store.MarkWithdrawalPaid(ctx, p.ID, t.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Info("payout not tracked as a withdrawal", slog.String("payout_id", p.ID))
		return nil
	}
	if err != nil {
		return err
	}

	t.logger.Info("withdrawal paid", slog.String("payout_id", p.ID), slog.String("amount", FormatCents(p.Amount)))
	publish(ctx, t.events, t.logger, events.New(events.TypePayoutPaid, nil, p.ID, map[string]any{
		"amount": p.Amount,
	}))
	return nil
}

func (t *PayoutTracker) HandlePayoutFailed(ctx context.Context, p *gateway.Payout) error {
	code := p.FailureCode
	if code == "" {
		code = defaultPayoutFailureCode
	}
	message := p.FailureMessage
	if message == "" {
		message = defaultPayoutFailureMessage
	}

	err := t.store.MarkWithdrawalFailed(ctx, p.ID, code, message)
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Info("payout not tracked as a withdrawal", slog.String("payout_id", p.ID))
		return nil
	}
	if err != nil {
		return err
	}

	t.logger.Warn("withdrawal failed",
		slog.String("payout_id", p.ID),
		slog.String("failure_code", code),
		slog.String("failure_message", message))
	publish(ctx, t.events, t.logger, events.New(events.TypePayoutFailed, nil, p.ID, map[string]any{
		"failure_code":    code,
		"failure_message": message,
	}))
	return nil
}
