package models

import (
	"time"

	"github.com/google/uuid"
)

// Gateway lifecycle states we act on. Other gateway states are stored verbatim.
const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusSucceeded             = "succeeded"
	IntentStatusCanceled              = "canceled"
)

// PaymentIntent records one payment attempt for a job and the external references used to
// correlate gateway callbacks back to it. AmountCents is the worker share.
type PaymentIntent struct {
	ID                    uuid.UUID `db:"id"                       json:"id"`
	JobID                 uuid.UUID `db:"job_id"                   json:"job_id"`
	StripePaymentIntentID *string   `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	CheckoutSessionID     *string   `db:"checkout_session_id"      json:"checkout_session_id,omitempty"`
	AmountCents           int64     `db:"amount_cents"             json:"amount_cents"`
	PlatformFeeCents      int64     `db:"platform_fee_cents"       json:"platform_fee_cents"`
	Currency              string    `db:"currency"                 json:"currency"`
	Status                string    `db:"status"                   json:"status"`
	ClientSecret          *string   `db:"client_secret"            json:"-"`
	CreatedAt             time.Time `db:"created_at"               json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"               json:"updated_at"`
}
