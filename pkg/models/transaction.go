package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionStatusHeld     = "held"
	TransactionStatusReleased = "released"
	TransactionStatusDisputed = "disputed"
	TransactionStatusRefunded = "refunded"
)

// Transaction is the escrow record for a job: funds captured from the poster and earmarked
// for the worker. There is at most one per job.
type Transaction struct {
	ID                    uuid.UUID `db:"id"                       json:"id"`
	JobID                 uuid.UUID `db:"job_id"                   json:"job_id"`
	AmountCents           int64     `db:"amount"                   json:"amount_cents"`
	PlatformFeeCents      int64     `db:"platform_fee_amount"      json:"platform_fee_cents"`
	Currency              string    `db:"currency"                 json:"currency"`
	Status                string    `db:"status"                   json:"status"`
	PaymentProvider       string    `db:"payment_provider"         json:"payment_provider"`
	ProviderTransactionID string    `db:"provider_transaction_id"  json:"provider_transaction_id"`
	StripePaymentIntentID string    `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id"`
	HeldAt                time.Time `db:"held_at"                  json:"held_at"`
	CreatedAt             time.Time `db:"created_at"               json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"               json:"updated_at"`
}
