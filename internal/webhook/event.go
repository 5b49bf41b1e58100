package webhook

import (
	"encoding/json"
	"fmt"
)

// Event types handled by the router.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventAccountUpdated           = "account.updated"
	EventChargeDisputeCreated     = "charge.dispute.created"
	EventPayoutPaid               = "payout.paid"
	EventPayoutFailed             = "payout.failed"
)

// Event is the gateway's webhook envelope. Data.Object stays raw until the route is known.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Account  string    `json:"account,omitempty"`
	Data     EventData `json:"data"`
}

type EventData struct {
	Object json.RawMessage `json:"object"`
}

// ParseEvent decodes a verified request body.
func ParseEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return e, nil
}
