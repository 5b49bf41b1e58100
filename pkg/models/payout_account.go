package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutAccount mirrors a worker's connected payout sub-account. The flags are kept in sync
// from account.updated events and gate checkout creation.
type PayoutAccount struct {
	ID                 uuid.UUID `db:"id"                  json:"id"`
	ProfileID          uuid.UUID `db:"profile_id"          json:"profile_id"`
	StripeAccountID    string    `db:"stripe_account_id"   json:"stripe_account_id"`
	OnboardingComplete bool      `db:"onboarding_complete" json:"onboarding_complete"`
	PayoutsEnabled     bool      `db:"payouts_enabled"     json:"payouts_enabled"`
	ChargesEnabled     bool      `db:"charges_enabled"     json:"charges_enabled"`
	DetailsSubmitted   bool      `db:"details_submitted"   json:"details_submitted"`
	CreatedAt          time.Time `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"          json:"updated_at"`
}

// AccountStatus is the subset of account flags reported by the gateway.
type AccountStatus struct {
	PayoutsEnabled   bool
	ChargesEnabled   bool
	DetailsSubmitted bool
}
