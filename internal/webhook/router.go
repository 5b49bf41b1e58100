package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mimanitas/settlement/internal/gateway"
)

// Handlers receives decoded gateway objects. Implementations decide what is an error; the
// router only reports it.
type Handlers interface {
	HandleCheckoutCompleted(ctx context.Context, s *gateway.CheckoutSession) error
	HandlePaymentSucceeded(ctx context.Context, pi *gateway.PaymentIntent) error
	HandlePaymentFailed(ctx context.Context, pi *gateway.PaymentIntent) error
	HandleAccountUpdated(ctx context.Context, a *gateway.Account) error
	HandleDisputeCreated(ctx context.Context, d *gateway.Dispute) error
	HandlePayoutPaid(ctx context.Context, p *gateway.Payout) error
	HandlePayoutFailed(ctx context.Context, p *gateway.Payout) error
}

// Deduper remembers recently processed event ids. cache.Cache satisfies it.
type Deduper interface {
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ClearEvent(ctx context.Context, eventID string) error
}

type route func(ctx context.Context, raw json.RawMessage) error

// Router dispatches events to Handlers by type.
type Router struct {
	routes map[string]route
	dedup  Deduper
	ttl    time.Duration
	logger *slog.Logger
}

// NewRouter builds the static routing table. dedup may be nil.
func NewRouter(h Handlers, dedup Deduper, ttl time.Duration, logger *slog.Logger) *Router {
	return &Router{
		routes: map[string]route{
			EventCheckoutSessionCompleted: decodeInto(h.HandleCheckoutCompleted),
			EventPaymentIntentSucceeded:   decodeInto(h.HandlePaymentSucceeded),
			EventPaymentIntentFailed:      decodeInto(h.HandlePaymentFailed),
			EventAccountUpdated:           decodeInto(h.HandleAccountUpdated),
			EventChargeDisputeCreated:     decodeInto(h.HandleDisputeCreated),
			EventPayoutPaid:               decodeInto(h.HandlePayoutPaid),
			EventPayoutFailed:             decodeInto(h.HandlePayoutFailed),
		},
		dedup:  dedup,
		ttl:    ttl,
		logger: logger,
	}
}

func decodeInto[T any](fn func(context.Context, *T) error) route {
	return func(ctx context.Context, raw json.RawMessage) error {
		var obj T
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("decode %T: %w", obj, err)
		}
		return fn(ctx, &obj)
	}
}

// Handles reports whether the router has a route for eventType.
func (r *Router) Handles(eventType string) bool {
	_, ok := r.routes[eventType]
	return ok
}

// Dispatch routes one event. Unknown types and repeat deliveries are acknowledged without
// side effects. A failed dispatch forgets the event id so a redelivery is processed again.
func (r *Router) Dispatch(ctx context.Context, e Event) error {
	handle, ok := r.routes[e.Type]
	if !ok {
		r.logger.Info("unhandled webhook event type", slog.String("type", e.Type), slog.String("event_id", e.ID))
		return nil
	}

	if r.dedup != nil && e.ID != "" {
		first, err := r.dedup.MarkEventSeen(ctx, e.ID, r.ttl)
		switch {
		case err != nil:
			r.logger.Warn("event dedup unavailable, processing anyway",
				slog.String("event_id", e.ID), slog.Any("error", err))
		case !first:
			r.logger.Info("duplicate webhook event skipped", slog.String("type", e.Type), slog.String("event_id", e.ID))
			return nil
		}
	}

	if err := handle(ctx, e.Data.Object); err != nil {
		if r.dedup != nil && e.ID != "" {
			if cerr := r.dedup.ClearEvent(ctx, e.ID); cerr != nil {
				r.logger.Warn("failed to clear event mark", slog.String("event_id", e.ID), slog.Any("error", cerr))
			}
		}
		return fmt.Errorf("%s %s: %w", e.Type, e.ID, err)
	}
	return nil
}
