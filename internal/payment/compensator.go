package payment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mimanitas/settlement/internal/events"
	"github.com/mimanitas/settlement/internal/gateway"
	"github.com/mimanitas/settlement/internal/store"
)

// Compensator undoes or flags settlement state when a payment fails or is disputed.
type Compensator struct {
	store  store.Store
	events events.Publisher
	logger *slog.Logger
}

func NewCompensator(s store.Store, pub events.Publisher, logger *slog.Logger) *Compensator {
	return &Compensator{store: s, events: pub, logger: logger}
}

// HandlePaymentFailed cancels the intent record and reopens the job, unless the job is
// already paid or a payment attempt opened after the failing one is still open.
func (c *Compensator) HandlePaymentFailed(ctx context.Context, pi *gateway.PaymentIntent) error {
	logger := c.logger.With(slog.String("payment_intent_id", pi.ID))
	if pi.LastPaymentError != nil {
		logger = logger.With(slog.String("failure", pi.LastPaymentError.Message))
	}

	jobID, _ := parseRefs(pi.Metadata)

	err := c.store.CancelPaymentIntent(ctx, pi.ID, jobID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("no cancellable intent record")
	case err != nil:
		return err
	}

	if jobID == uuid.Nil {
		logger.Info("failed payment carries no job reference")
		return nil
	}

	reverted, err := c.store.RevertJobPayment(ctx, jobID, pi.ID)
	if err != nil {
		return err
	}
	if !reverted {
		logger.Info("job left unchanged after payment failure", slog.String("job_id", jobID.String()))
		return nil
	}

	logger.Info("job reopened after payment failure", slog.String("job_id", jobID.String()))
	publish(ctx, c.events, logger, events.New(events.TypePaymentReverted, &jobID, pi.ID, nil))
	return nil
}

// HandleDisputeCreated marks the job refunded and its escrow transaction disputed.
func (c *Compensator) HandleDisputeCreated(ctx context.Context, d *gateway.Dispute) error {
	logger := c.logger.With(slog.String("dispute_id", d.ID), slog.String("payment_intent_id", d.PaymentIntent))

	if d.PaymentIntent == "" {
		logger.Warn("dispute without payment intent reference")
		return nil
	}

	rec, err := c.store.GetPaymentIntentByStripeID(ctx, d.PaymentIntent)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("dispute for unknown payment intent")
		return nil
	}
	if err != nil {
		return err
	}

	err = c.store.RecordDispute(ctx, rec.JobID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("dispute for missing job", slog.String("job_id", rec.JobID.String()))
		return nil
	}
	if err != nil {
		return err
	}

	logger.Warn("payment disputed",
		slog.String("job_id", rec.JobID.String()),
		slog.String("reason", d.Reason),
		slog.String("amount", FormatCents(d.Amount)))

	jobID := rec.JobID
	publish(ctx, c.events, logger, events.New(events.TypePaymentDisputed, &jobID, d.PaymentIntent, map[string]any{
		"dispute_id": d.ID,
		"reason":     d.Reason,
		"amount":     d.Amount,
	}))
	return nil
}
