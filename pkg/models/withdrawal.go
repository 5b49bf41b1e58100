package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	WithdrawalStatusPending = "pending"
	WithdrawalStatusPaid    = "paid"
	WithdrawalStatusFailed  = "failed"
)

// Withdrawal is a worker-initiated payout. Its terminal status arrives asynchronously.
type Withdrawal struct {
	ID             uuid.UUID  `db:"id"               json:"id"`
	ProfileID      uuid.UUID  `db:"profile_id"       json:"profile_id"`
	AmountCents    int64      `db:"amount_cents"     json:"amount_cents"`
	StripePayoutID string     `db:"stripe_payout_id" json:"stripe_payout_id"`
	Status         string     `db:"status"           json:"status"`
	FailureCode    *string    `db:"failure_code"     json:"failure_code,omitempty"`
	FailureMessage *string    `db:"failure_message"  json:"failure_message,omitempty"`
	PaidAt         *time.Time `db:"paid_at"          json:"paid_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
}
